package isrsim

import (
	"sync"
	"time"
)

// MaskTable holds the per-device masked flag. Every device has an entry
// from construction, initially unmasked.
type MaskTable struct {
	notifier Notifier
	clock    func() time.Time

	mu     sync.RWMutex
	masked map[Device]bool
}

// NewMaskTable builds a table with all devices unmasked. Mask changes are
// reported to notifier when it is non-nil.
func NewMaskTable(notifier Notifier) *MaskTable {
	t := &MaskTable{
		notifier: notifier,
		masked:   make(map[Device]bool, len(deviceNames)),
	}
	for _, d := range Devices() {
		t.masked[d] = false
	}
	return t
}

// IsMasked returns the current flag for d. Unknown devices report false.
func (t *MaskTable) IsMasked(d Device) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.masked[d]
}

// Set overwrites the flag for d and emits a masked or unmasked event.
func (t *MaskTable) Set(d Device, masked bool) error {
	if err := validateDevice(d); err != nil {
		return err
	}
	t.mu.Lock()
	t.masked[d] = masked
	t.mu.Unlock()

	kind := EventUnmasked
	if masked {
		kind = EventMasked
	}
	if t.notifier != nil {
		t.notifier.Notify(Event{Kind: kind, Device: d, At: t.now()})
	}
	return nil
}

// Snapshot copies the current flags.
func (t *MaskTable) Snapshot() map[Device]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Device]bool, len(t.masked))
	for d, m := range t.masked {
		out[d] = m
	}
	return out
}

func (t *MaskTable) now() time.Time {
	if t.clock != nil {
		return t.clock()
	}
	return time.Now()
}
