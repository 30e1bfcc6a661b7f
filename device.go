package isrsim

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Device identifies an interrupt source. The set is closed; each device
// carries a fixed priority where a lower value is serviced first.
type Device int

const (
	DeviceKeyboard Device = iota + 1
	DeviceMouse
	DevicePrinter
)

var deviceNames = map[Device]string{
	DeviceKeyboard: "KEYBOARD",
	DeviceMouse:    "MOUSE",
	DevicePrinter:  "PRINTER",
}

var devicePriorities = map[Device]int{
	DeviceKeyboard: 1,
	DeviceMouse:    2,
	DevicePrinter:  3,
}

// Devices returns every known device in declaration order.
func Devices() []Device {
	return []Device{DeviceKeyboard, DeviceMouse, DevicePrinter}
}

// Valid reports whether d belongs to the enumerated device set.
func (d Device) Valid() bool {
	_, ok := deviceNames[d]
	return ok
}

// Priority returns the service priority of d. Unknown devices sort last.
func (d Device) Priority() int {
	if p, ok := devicePriorities[d]; ok {
		return p
	}
	return math.MaxInt
}

func (d Device) String() string {
	if name, ok := deviceNames[d]; ok {
		return name
	}
	return "DEVICE(" + strconv.Itoa(int(d)) + ")"
}

// ParseDevice resolves a device by name, ignoring case and surrounding blanks.
func ParseDevice(name string) (Device, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for _, d := range Devices() {
		if deviceNames[d] == key {
			return d, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidDevice, "parse device %q", name)
}

// ParseDevices resolves a list of names, stopping at the first unknown one.
func ParseDevices(names []string) ([]Device, error) {
	out := make([]Device, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		d, err := ParseDevice(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func validateDevice(d Device) error {
	if !d.Valid() {
		return errors.Wrapf(ErrInvalidDevice, "device %d", int(d))
	}
	return nil
}
