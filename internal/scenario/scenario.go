// Package scenario loads scripted trigger/mask sequences from YAML and
// replays them against a fresh interrupt controller.
package scenario

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/httprunner/isrsim"
)

// Handler start positions.
const (
	StartBefore = "before"
	StartAfter  = "after"
)

// Scenario is one scripted run.
type Scenario struct {
	Name         string        `yaml:"name"`
	ServiceDelay time.Duration `yaml:"service_delay,omitempty"`
	// Start says whether the handler starts before or after the steps run.
	Start string `yaml:"start,omitempty"`
	Steps []Step `yaml:"steps"`
	// Expect lists devices in the order they must be serviced. Nil skips
	// the check; an empty list requires that nothing was serviced.
	Expect []string `yaml:"expect,omitempty"`
	// ExpectIgnored lists devices whose triggers must have been dropped.
	ExpectIgnored []string `yaml:"expect_ignored,omitempty"`
}

// Step performs exactly one action.
type Step struct {
	Trigger  string        `yaml:"trigger,omitempty"`
	Mask     string        `yaml:"mask,omitempty"`
	Unmask   string        `yaml:"unmask,omitempty"`
	Sleep    time.Duration `yaml:"sleep,omitempty"`
	WaitIdle bool          `yaml:"wait_idle,omitempty"`
}

// LoadError describes a scenario that could not be read or validated.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes and validates a scenario from YAML bytes.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	sc, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}

// Validate checks device names, step shape, and the start position.
func (sc *Scenario) Validate() error {
	switch strings.ToLower(strings.TrimSpace(sc.Start)) {
	case "":
		sc.Start = StartAfter
	case StartBefore, StartAfter:
		sc.Start = strings.ToLower(strings.TrimSpace(sc.Start))
	default:
		return &LoadError{Message: fmt.Sprintf("start must be %q or %q, got %q", StartBefore, StartAfter, sc.Start)}
	}
	if sc.ServiceDelay < 0 {
		return &LoadError{Message: "service_delay must not be negative"}
	}
	if len(sc.Steps) == 0 {
		return &LoadError{Message: "scenario must have at least one step"}
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return &LoadError{Message: fmt.Sprintf("step %d", i+1), Cause: err}
		}
		if step.WaitIdle && sc.Start == StartAfter {
			return &LoadError{Message: fmt.Sprintf("step %d: wait_idle requires start: %s", i+1, StartBefore)}
		}
	}
	if _, err := isrsim.ParseDevices(sc.Expect); err != nil {
		return &LoadError{Message: "expect", Cause: err}
	}
	if _, err := isrsim.ParseDevices(sc.ExpectIgnored); err != nil {
		return &LoadError{Message: "expect_ignored", Cause: err}
	}
	return nil
}

func (s Step) validate() error {
	actions := 0
	for _, name := range []string{s.Trigger, s.Mask, s.Unmask} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		actions++
		if _, err := isrsim.ParseDevice(name); err != nil {
			return err
		}
	}
	if s.Sleep != 0 {
		actions++
	}
	if s.WaitIdle {
		actions++
	}
	if s.Sleep < 0 {
		return errors.New("sleep must not be negative")
	}
	if actions != 1 {
		return errors.Errorf("expected exactly one action, got %d", actions)
	}
	return nil
}
