package scenario

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/isrsim"
)

const defaultTimeout = 30 * time.Second

// ErrExpectationMismatch reports a run whose observed order differs from
// the scenario's expectation.
var ErrExpectationMismatch = errors.New("scenario expectation mismatch")

// Options tune a scenario run.
type Options struct {
	// Notifier additionally receives every controller event.
	Notifier isrsim.Notifier
	// Timeout bounds the whole run: every step plus the final drain.
	Timeout time.Duration
}

// Result is the outcome of one run. Err is set when the expectations did
// not hold; it wraps ErrExpectationMismatch.
type Result struct {
	Name     string
	Serviced []isrsim.Device
	Ignored  []isrsim.Device
	Log      []isrsim.LogEntry
	Err      error
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return r != nil && r.Err == nil
}

// Run replays sc on a new controller, waits for the queue to drain, and
// checks the expectations. The returned error covers failures to run at
// all; expectation mismatches are reported through Result.Err.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	if sc == nil {
		return nil, errors.New("scenario cannot be nil")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	collector := &isrsim.EventCollector{}
	ic := isrsim.NewInterruptController(isrsim.Config{
		ServiceDelay: sc.ServiceDelay,
		Notifier:     isrsim.MultiNotifier(opts.Notifier, collector),
	})

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runCtx, runCancel := context.WithTimeout(handlerCtx, timeout)
	defer runCancel()

	if sc.Start == StartBefore {
		if err := ic.StartHandler(handlerCtx); err != nil {
			return nil, err
		}
	}
	for i, step := range sc.Steps {
		if err := applyStep(runCtx, ic, step); err != nil {
			return nil, errors.Wrapf(err, "scenario %q step %d", sc.Name, i+1)
		}
	}
	if sc.Start != StartBefore {
		if err := ic.StartHandler(handlerCtx); err != nil {
			return nil, err
		}
	}

	if err := ic.WaitIdle(runCtx); err != nil {
		return nil, errors.Wrapf(err, "scenario %q did not drain", sc.Name)
	}
	cancel()
	if err := ic.Wait(); err != nil {
		return nil, errors.Wrapf(err, "scenario %q handler", sc.Name)
	}

	res := &Result{Name: sc.Name, Log: ic.ReadLog()}
	for _, entry := range res.Log {
		res.Serviced = append(res.Serviced, entry.Device)
	}
	for _, ev := range collector.Events() {
		if ev.Kind == isrsim.EventIgnored {
			res.Ignored = append(res.Ignored, ev.Device)
		}
	}
	res.Err = check(sc, res)

	log.Debug().
		Str("scenario", sc.Name).
		Int("serviced", len(res.Serviced)).
		Int("ignored", len(res.Ignored)).
		Bool("passed", res.Passed()).
		Msg("scenario finished")
	return res, nil
}

func applyStep(ctx context.Context, ic *isrsim.InterruptController, step Step) error {
	switch {
	case strings.TrimSpace(step.Trigger) != "":
		d, err := isrsim.ParseDevice(step.Trigger)
		if err != nil {
			return err
		}
		return ic.TriggerInterrupt(d)
	case strings.TrimSpace(step.Mask) != "":
		d, err := isrsim.ParseDevice(step.Mask)
		if err != nil {
			return err
		}
		return ic.SetMask(d, true)
	case strings.TrimSpace(step.Unmask) != "":
		d, err := isrsim.ParseDevice(step.Unmask)
		if err != nil {
			return err
		}
		return ic.SetMask(d, false)
	case step.Sleep > 0:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step.Sleep):
		}
		return nil
	case step.WaitIdle:
		return ic.WaitIdle(ctx)
	}
	return nil
}

func check(sc *Scenario, res *Result) error {
	if sc.Expect != nil {
		want, _ := isrsim.ParseDevices(sc.Expect)
		if !sameDevices(want, res.Serviced) {
			return errors.Wrapf(ErrExpectationMismatch, "serviced %s, want %s", joinDevices(res.Serviced), joinDevices(want))
		}
	}
	if sc.ExpectIgnored != nil {
		want, _ := isrsim.ParseDevices(sc.ExpectIgnored)
		if !sameDevices(want, res.Ignored) {
			return errors.Wrapf(ErrExpectationMismatch, "ignored %s, want %s", joinDevices(res.Ignored), joinDevices(want))
		}
	}
	return nil
}

func sameDevices(a, b []isrsim.Device) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinDevices(ds []isrsim.Device) string {
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.String())
	}
	return "[" + strings.Join(names, ", ") + "]"
}
