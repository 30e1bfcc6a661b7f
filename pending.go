package isrsim

import "sort"

// pendingQueue keeps devices awaiting service ordered by ascending priority.
// Equal priorities keep insertion order. Not safe for concurrent use; the
// controller guards it.
type pendingQueue struct {
	items []Device
}

// push inserts d after every entry whose priority is <= d's, which is the
// same order a stable re-sort after append would produce.
func (q *pendingQueue) push(d Device) {
	p := d.Priority()
	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority() > p
	})
	q.items = append(q.items, 0)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = d
}

func (q *pendingQueue) popFront() (Device, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	d := q.items[0]
	q.items[0] = 0
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return d, true
}

func (q *pendingQueue) len() int {
	return len(q.items)
}

func (q *pendingQueue) snapshot() []Device {
	out := make([]Device, len(q.items))
	copy(out, q.items)
	return out
}
