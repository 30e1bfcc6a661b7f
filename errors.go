package isrsim

import "github.com/pkg/errors"

var (
	// ErrInvalidDevice is returned when a device outside the enumerated set
	// reaches the controller boundary.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrAlreadyStarted is returned by a second StartHandler call.
	ErrAlreadyStarted = errors.New("isr handler already started")
	// ErrNotStarted is returned by Wait when no handler was started.
	ErrNotStarted = errors.New("isr handler not started")
)
