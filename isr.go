package isrsim

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// HandlerState is the ISR loop position.
type HandlerState int

const (
	// HandlerWaiting blocks until the pending queue is non-empty.
	HandlerWaiting HandlerState = iota
	// HandlerDequeued holds one device removed from the queue front.
	HandlerDequeued
	// HandlerServicing runs the simulated service delay.
	HandlerServicing
)

func (s HandlerState) String() string {
	switch s {
	case HandlerWaiting:
		return "waiting"
	case HandlerDequeued:
		return "dequeued"
	case HandlerServicing:
		return "servicing"
	default:
		return "unknown"
	}
}

const outcomeHandled = "handled"

// LogEntry records one completed interrupt service. Entries are never
// modified after they are appended.
type LogEntry struct {
	Seq         int64
	Device      Device
	StartedAt   time.Time
	CompletedAt time.Time
	Outcome     string
}

// String renders the entry the way the execution log prints it.
func (e LogEntry) String() string {
	return e.CompletedAt.Format("15:04:05") + " → " + e.Device.String() + " interrupt " + e.Outcome + "."
}

// serve is the ISR loop. It returns nil once ctx is cancelled while waiting.
func (c *InterruptController) serve(ctx context.Context) error {
	c.setState(HandlerWaiting)
	for {
		device, seq, ok := c.next(ctx)
		if !ok {
			log.Debug().Str("machine", c.cfg.MachineID).Msg("isr handler stopped")
			return nil
		}
		c.service(device, seq)
	}
}

// next blocks in the waiting state until a device can be removed from the
// queue front. The removal and the move to dequeued happen under one lock.
func (c *InterruptController) next(ctx context.Context) (Device, int64, bool) {
	for {
		if ctx.Err() != nil {
			return 0, 0, false
		}
		if d, seq, ok := c.tryDequeue(); ok {
			return d, seq, true
		}
		select {
		case <-ctx.Done():
			return 0, 0, false
		case <-c.wake:
		}
	}
}

func (c *InterruptController) tryDequeue() (Device, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.pending.popFront()
	if !ok {
		return 0, 0, false
	}
	c.seq++
	c.state = HandlerDequeued
	return d, c.seq, true
}

// service runs one simulated ISR. The delay is never cut short. If the
// routine panics before its entry is logged, d goes back on the queue so
// the restarted handler services it again.
func (c *InterruptController) service(d Device, seq int64) {
	logged := false
	defer func() {
		if !logged {
			c.requeue(d)
		}
	}()

	start := c.cfg.Clock()
	c.setState(HandlerServicing)
	c.notifier.Notify(Event{Kind: EventISRStart, Device: d, At: start})

	time.Sleep(c.cfg.ServiceDelay)

	end := c.cfg.Clock()
	entry := LogEntry{
		Seq:         seq,
		Device:      d,
		StartedAt:   start,
		CompletedAt: end,
		Outcome:     outcomeHandled,
	}
	c.logMu.Lock()
	c.entries = append(c.entries, entry)
	c.logMu.Unlock()
	logged = true

	c.notifier.Notify(Event{Kind: EventISRComplete, Device: d, At: end})
	c.setState(HandlerWaiting)
}

func (c *InterruptController) requeue(d Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.push(d)
	c.state = HandlerWaiting
	c.signal()
}

func (c *InterruptController) setState(s HandlerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
