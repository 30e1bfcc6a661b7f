package isrsim

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventKind names a status notification emitted by the controller.
type EventKind string

const (
	EventTriggered   EventKind = "triggered"
	EventIgnored     EventKind = "ignored"
	EventMasked      EventKind = "masked"
	EventUnmasked    EventKind = "unmasked"
	EventISRStart    EventKind = "isr_start"
	EventISRComplete EventKind = "isr_complete"
)

// Event is one observable status change.
type Event struct {
	Kind   EventKind
	Device Device
	At     time.Time
}

// Notifier receives status events synchronously. Implementations must not
// call back into the controller that emitted the event.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type noopNotifier struct{}

func (noopNotifier) Notify(Event) {}

// MultiNotifier fans one event out to several sinks in order.
func MultiNotifier(sinks ...Notifier) Notifier {
	out := make([]Notifier, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return noopNotifier{}
	case 1:
		return out[0]
	}
	return multiNotifier(out)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ev Event) {
	for _, s := range m {
		s.Notify(ev)
	}
}

// LogNotifier writes events as structured log lines.
type LogNotifier struct {
	Logger zerolog.Logger
}

// NewLogNotifier tags every line with the machine id.
func NewLogNotifier(machineID string) *LogNotifier {
	return &LogNotifier{Logger: log.With().Str("machine", machineID).Logger()}
}

func (n *LogNotifier) Notify(ev Event) {
	var e *zerolog.Event
	switch ev.Kind {
	case EventIgnored:
		e = n.Logger.Warn()
	case EventISRStart, EventISRComplete:
		e = n.Logger.Debug()
	default:
		e = n.Logger.Info()
	}
	e.Str("device", ev.Device.String()).
		Int("priority", ev.Device.Priority()).
		Time("at", ev.At).
		Msg(eventMessage(ev.Kind))
}

func eventMessage(kind EventKind) string {
	switch kind {
	case EventTriggered:
		return "interrupt received"
	case EventIgnored:
		return "interrupt masked, ignored"
	case EventMasked:
		return "device masked"
	case EventUnmasked:
		return "device unmasked"
	case EventISRStart:
		return "isr start"
	case EventISRComplete:
		return "isr complete"
	default:
		return string(kind)
	}
}

// EventCollector keeps every event it receives, mainly for tests and
// interactive inspection.
type EventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *EventCollector) Notify(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of the collected events.
func (c *EventCollector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Kinds filters collected events for one device down to their kinds.
func (c *EventCollector) Kinds(d Device) []EventKind {
	var out []EventKind
	for _, ev := range c.Events() {
		if ev.Device == d {
			out = append(out, ev.Kind)
		}
	}
	return out
}
