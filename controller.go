package isrsim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultServiceDelay = 500 * time.Millisecond
	idlePollInterval    = 5 * time.Millisecond
)

// Config controls InterruptController behavior.
type Config struct {
	// ServiceDelay is the simulated ISR execution time per interrupt.
	ServiceDelay time.Duration
	// Notifier receives status events; defaults to a LogNotifier.
	Notifier Notifier
	// Clock stamps events and log entries; defaults to time.Now.
	Clock func() time.Time
	// MachineID labels the simulated machine in log output; a random UUID
	// is used when empty.
	MachineID string
}

// InterruptController queues device interrupts by priority and services
// them on a single background ISR goroutine.
type InterruptController struct {
	cfg      Config
	notifier Notifier
	masks    *MaskTable

	mu      sync.Mutex
	pending pendingQueue
	state   HandlerState
	started bool
	seq     int64
	group   *errgroup.Group
	wake    chan struct{}

	logMu   sync.RWMutex
	entries []LogEntry
}

// NewInterruptController builds a controller with all devices unmasked and
// an empty queue. The ISR handler is not running until StartHandler.
func NewInterruptController(cfg Config) *InterruptController {
	if cfg.ServiceDelay <= 0 {
		cfg.ServiceDelay = defaultServiceDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MachineID == "" {
		cfg.MachineID = uuid.NewString()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(cfg.MachineID)
	}
	masks := NewMaskTable(notifier)
	masks.clock = cfg.Clock
	return &InterruptController{
		cfg:      cfg,
		notifier: notifier,
		masks:    masks,
		state:    HandlerWaiting,
		wake:     make(chan struct{}, 1),
	}
}

// MachineID returns the identifier attached to this controller's logs.
func (c *InterruptController) MachineID() string {
	return c.cfg.MachineID
}

// ServiceDelay returns the configured simulated ISR duration.
func (c *InterruptController) ServiceDelay() time.Duration {
	return c.cfg.ServiceDelay
}

// TriggerInterrupt raises an interrupt for d. Masked devices are dropped
// with an ignored event; otherwise d joins the pending queue in priority
// order and the handler is woken.
func (c *InterruptController) TriggerInterrupt(d Device) error {
	if err := validateDevice(d); err != nil {
		return errors.Wrap(err, "trigger interrupt")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Clock()
	if c.masks.IsMasked(d) {
		c.notifier.Notify(Event{Kind: EventIgnored, Device: d, At: now})
		return nil
	}
	c.notifier.Notify(Event{Kind: EventTriggered, Device: d, At: now})
	c.pending.push(d)
	c.signal()
	return nil
}

// SetMask changes the masked flag for d. Interrupts already queued for d
// are still serviced; only later triggers are affected.
func (c *InterruptController) SetMask(d Device, masked bool) error {
	if err := c.masks.Set(d, masked); err != nil {
		return errors.Wrap(err, "set mask")
	}
	return nil
}

// IsMasked reports the current mask flag for d.
func (c *InterruptController) IsMasked(d Device) bool {
	return c.masks.IsMasked(d)
}

// Masks returns a copy of every device's mask flag.
func (c *InterruptController) Masks() map[Device]bool {
	return c.masks.Snapshot()
}

// Pending returns the queued devices in the order they will be serviced.
func (c *InterruptController) Pending() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.snapshot()
}

// State returns the handler's current position in the ISR loop.
func (c *InterruptController) State() HandlerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReadLog returns a copy of the completed ISR records in append order.
func (c *InterruptController) ReadLog() []LogEntry {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// StartHandler launches the ISR goroutine. It runs until ctx is cancelled;
// only one handler may ever be started per controller.
func (c *InterruptController) StartHandler(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	group := &errgroup.Group{}
	c.group = group
	c.mu.Unlock()

	log.Debug().
		Str("machine", c.cfg.MachineID).
		Dur("service_delay", c.cfg.ServiceDelay).
		Msg("start isr handler")
	// A panicking ISR puts its device back on the queue before the restart.
	groupGoSafe(ctx, group, "isr handler", c.serve)
	return nil
}

// Wait blocks until the handler goroutine has exited.
func (c *InterruptController) Wait() error {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()
	if group == nil {
		return ErrNotStarted
	}
	return group.Wait()
}

// WaitIdle blocks until the queue is empty and the handler is waiting for
// work, or until ctx ends.
func (c *InterruptController) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		if c.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *InterruptController) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len() == 0 && c.state == HandlerWaiting
}

// signal wakes the handler without blocking. One buffered token is enough
// since the handler rechecks the queue before every wait.
func (c *InterruptController) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
