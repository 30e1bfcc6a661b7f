package isrsim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const testServiceDelay = 2 * time.Millisecond

func newTestController(notifier Notifier) *InterruptController {
	return NewInterruptController(Config{
		ServiceDelay: testServiceDelay,
		Notifier:     notifier,
		MachineID:    "test-machine",
	})
}

func startHandler(t *testing.T, ic *InterruptController) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := ic.StartHandler(ctx); err != nil {
		cancel()
		t.Fatalf("StartHandler returned error: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = ic.Wait()
	})
	return cancel
}

func waitIdle(t *testing.T, ic *InterruptController) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ic.WaitIdle(ctx); err != nil {
		t.Fatalf("controller did not drain: %v (pending %v)", err, ic.Pending())
	}
}

func loggedDevices(entries []LogEntry) []Device {
	out := make([]Device, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Device)
	}
	return out
}

func assertDevices(t *testing.T, label string, got, want []Device) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", label, got, want)
		}
	}
}

func trigger(t *testing.T, ic *InterruptController, devices ...Device) {
	t.Helper()
	for _, d := range devices {
		if err := ic.TriggerInterrupt(d); err != nil {
			t.Fatalf("TriggerInterrupt(%s) returned error: %v", d, err)
		}
	}
}

func TestServicesInPriorityOrder(t *testing.T) {
	ic := newTestController(&EventCollector{})
	trigger(t, ic, DevicePrinter, DeviceMouse, DeviceKeyboard)
	assertDevices(t, "pending", ic.Pending(), []Device{DeviceKeyboard, DeviceMouse, DevicePrinter})

	startHandler(t, ic)
	waitIdle(t, ic)

	entries := ic.ReadLog()
	assertDevices(t, "log", loggedDevices(entries), []Device{DeviceKeyboard, DeviceMouse, DevicePrinter})
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Fatalf("entry %d seq = %d", i, e.Seq)
		}
		if e.Outcome != "handled" {
			t.Fatalf("entry %d outcome = %q", i, e.Outcome)
		}
		if e.CompletedAt.Before(e.StartedAt) {
			t.Fatalf("entry %d completed before it started", i)
		}
	}
}

func TestMaskedTriggerIsIgnored(t *testing.T) {
	collector := &EventCollector{}
	ic := newTestController(collector)
	if err := ic.SetMask(DeviceMouse, true); err != nil {
		t.Fatalf("SetMask returned error: %v", err)
	}
	trigger(t, ic, DeviceMouse, DeviceKeyboard)
	assertDevices(t, "pending", ic.Pending(), []Device{DeviceKeyboard})

	startHandler(t, ic)
	waitIdle(t, ic)
	assertDevices(t, "log", loggedDevices(ic.ReadLog()), []Device{DevicePrinter, DeviceKeyboard})
	if got := len(collector.Kinds(DevicePrinter)); got != 4 {
		t.Fatalf("printer events = %v, want triggered plus two starts and one completion", collector.Kinds(DevicePrinter))
	}

	mouse := collector.Kinds(DeviceMouse)
	if len(mouse) != 2 || mouse[0] != EventMasked || mouse[1] != EventIgnored {
		t.Fatalf("unexpected mouse events: %v", mouse)
	}
	keyboard := collector.Kinds(DeviceKeyboard)
	want := []EventKind{EventTriggered, EventISRStart, EventISRComplete}
	if len(keyboard) != len(want) {
		t.Fatalf("unexpected keyboard events: %v", keyboard)
	}
	for i := range want {
		if keyboard[i] != want[i] {
			t.Fatalf("unexpected keyboard events: %v", keyboard)
		}
	}
}

func TestDuplicateTriggersKeepInsertionOrder(t *testing.T) {
	ic := newTestController(&EventCollector{})
	trigger(t, ic, DeviceKeyboard, DeviceKeyboard, DeviceMouse)

	startHandler(t, ic)
	waitIdle(t, ic)
	assertDevices(t, "log", loggedDevices(ic.ReadLog()), []Device{DeviceKeyboard, DeviceKeyboard, DeviceMouse})
}

func TestMaskingDoesNotDropQueuedInterrupts(t *testing.T) {
	ic := newTestController(&EventCollector{})
	trigger(t, ic, DeviceMouse, DevicePrinter)
	if err := ic.SetMask(DeviceMouse, true); err != nil {
		t.Fatalf("SetMask returned error: %v", err)
	}
	assertDevices(t, "pending", ic.Pending(), []Device{DeviceMouse, DevicePrinter})

	trigger(t, ic, DeviceMouse)
	assertDevices(t, "pending", ic.Pending(), []Device{DeviceMouse, DevicePrinter})

	startHandler(t, ic)
	waitIdle(t, ic)
	assertDevices(t, "log", loggedDevices(ic.ReadLog()), []Device{DeviceMouse, DevicePrinter})
}

func TestTriggerRejectsInvalidDevice(t *testing.T) {
	collector := &EventCollector{}
	ic := newTestController(collector)
	if err := ic.TriggerInterrupt(Device(0)); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected ErrInvalidDevice, got %v", err)
	}
	if err := ic.SetMask(Device(7), true); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected ErrInvalidDevice from SetMask, got %v", err)
	}
	if len(ic.Pending()) != 0 || len(collector.Events()) != 0 {
		t.Fatal("invalid devices must not touch the queue or emit events")
	}
}

func TestReadLogGrowsWithCompletions(t *testing.T) {
	ic := NewInterruptController(Config{
		ServiceDelay: 20 * time.Millisecond,
		Notifier:     &EventCollector{},
	})
	trigger(t, ic, DeviceMouse, DeviceKeyboard, DevicePrinter, DeviceKeyboard)
	if got := ic.ReadLog(); len(got) != 0 {
		t.Fatalf("expected empty log before the handler runs, got %v", got)
	}

	startHandler(t, ic)
	if got := ic.ReadLog(); len(got) != 0 {
		t.Fatalf("expected empty log before the first completion, got %v", got)
	}
	waitIdle(t, ic)

	entries := ic.ReadLog()
	assertDevices(t, "log", loggedDevices(entries), []Device{DeviceKeyboard, DeviceKeyboard, DeviceMouse, DevicePrinter})
	for i := 1; i < len(entries); i++ {
		if entries[i].CompletedAt.Before(entries[i-1].CompletedAt) {
			t.Fatalf("log not in completion order at %d", i)
		}
	}

	entries[0].Device = DevicePrinter
	if ic.ReadLog()[0].Device != DeviceKeyboard {
		t.Fatal("ReadLog must return a copy")
	}
}

// gateNotifier blocks the first isr_start until released, pinning the
// handler in the servicing state.
type gateNotifier struct {
	EventCollector
	once     sync.Once
	openOnce sync.Once
	started  chan struct{}
	release  chan struct{}
}

func (g *gateNotifier) open() {
	g.openOnce.Do(func() { close(g.release) })
}

func newGateNotifier() *gateNotifier {
	return &gateNotifier{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateNotifier) Notify(ev Event) {
	g.EventCollector.Notify(ev)
	if ev.Kind != EventISRStart {
		return
	}
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
}

func TestConcurrentlyPendingInterruptsFollowPriority(t *testing.T) {
	gate := newGateNotifier()
	ic := newTestController(gate)
	startHandler(t, ic)
	defer gate.open()

	trigger(t, ic, DevicePrinter)
	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started servicing")
	}
	if ic.State() != HandlerServicing {
		t.Fatalf("expected servicing state, got %s", ic.State())
	}

	trigger(t, ic, DeviceMouse, DeviceKeyboard, DeviceMouse)
	assertDevices(t, "pending", ic.Pending(), []Device{DeviceKeyboard, DeviceMouse, DeviceMouse})
	gate.open()

	waitIdle(t, ic)
	assertDevices(t, "log", loggedDevices(ic.ReadLog()), []Device{DevicePrinter, DeviceKeyboard, DeviceMouse, DeviceMouse})
	if ic.State() != HandlerWaiting {
		t.Fatalf("expected waiting state after drain, got %s", ic.State())
	}
}

func TestConcurrentProducersLoseNoInterrupts(t *testing.T) {
	ic := newTestController(&EventCollector{})
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				d := Devices()[(p+i)%len(Devices())]
				if err := ic.TriggerInterrupt(d); err != nil {
					t.Errorf("TriggerInterrupt returned error: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	pending := ic.Pending()
	if len(pending) != producers*perProducer {
		t.Fatalf("expected %d pending, got %d", producers*perProducer, len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].Priority() < pending[i-1].Priority() {
			t.Fatalf("pending queue unsorted at %d: %v", i, pending)
		}
	}
}

func TestStartHandlerOnlyOnce(t *testing.T) {
	ic := newTestController(&EventCollector{})
	if err := ic.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	startHandler(t, ic)
	if err := ic.StartHandler(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestHandlerStopsCleanlyOnCancel(t *testing.T) {
	ic := newTestController(&EventCollector{})
	cancel := startHandler(t, ic)
	cancel()

	done := make(chan error, 1)
	go func() { done <- ic.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not stop after cancel")
	}

	trigger(t, ic, DeviceKeyboard)
	time.Sleep(10 * testServiceDelay)
	assertDevices(t, "pending", ic.Pending(), []Device{DeviceKeyboard})
	if len(ic.ReadLog()) != 0 {
		t.Fatal("stopped handler must not service interrupts")
	}
}

func TestLogEntryString(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)
	entry := LogEntry{Device: DeviceMouse, CompletedAt: at, Outcome: "handled"}
	if got, want := entry.String(), "09:05:07 → MOUSE interrupt handled."; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestClockStampsEventsAndEntries(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	collector := &EventCollector{}
	ic := NewInterruptController(Config{
		ServiceDelay: testServiceDelay,
		Notifier:     collector,
		Clock:        func() time.Time { return fixed },
	})
	if ic.MachineID() == "" {
		t.Fatal("expected a generated machine id")
	}
	trigger(t, ic, DeviceKeyboard)
	startHandler(t, ic)
	waitIdle(t, ic)

	for _, ev := range collector.Events() {
		if !ev.At.Equal(fixed) {
			t.Fatalf("event %s stamped %v", ev.Kind, ev.At)
		}
	}
	entry := ic.ReadLog()[0]
	if !entry.StartedAt.Equal(fixed) || !entry.CompletedAt.Equal(fixed) {
		t.Fatalf("unexpected entry times: %+v", entry)
	}
}

type panicOnceNotifier struct {
	EventCollector
	once sync.Once
}

func (p *panicOnceNotifier) Notify(ev Event) {
	p.EventCollector.Notify(ev)
	if ev.Kind == EventISRStart {
		p.once.Do(func() { panic("sink exploded") })
	}
}

func TestHandlerRestartsAfterPanicAndKeepsInterrupt(t *testing.T) {
	notifier := &panicOnceNotifier{}
	ic := newTestController(notifier)
	startHandler(t, ic)

	trigger(t, ic, DevicePrinter)
	waitIdle(t, ic)
	trigger(t, ic, DeviceKeyboard)
	waitIdle(t, ic)

	assertDevices(t, "log", loggedDevices(ic.ReadLog()), []Device{DeviceKeyboard})
}
