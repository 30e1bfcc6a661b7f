package isrsim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Triggerer is the part of the controller a producer needs.
type Triggerer interface {
	TriggerInterrupt(d Device) error
}

// DriverConfig controls how a Driver generates interrupts.
type DriverConfig struct {
	// Count is the total number of triggers across all producers.
	Count int
	// Interval is the pause each producer takes after a trigger.
	Interval time.Duration
	// Producers is the number of concurrent triggering goroutines.
	Producers int
	// Devices restricts the random pick; all devices when empty.
	Devices []Device
	// Seed fixes the random sequence; zero picks a time-based seed.
	Seed int64
}

// DriverStats summarizes one Driver run.
type DriverStats struct {
	Triggered int
	ByDevice  map[Device]int
}

// Driver raises random device interrupts against a controller.
type Driver struct {
	cfg DriverConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDriver normalizes cfg and returns a ready driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Count < 0 {
		return nil, errors.Errorf("driver count must not be negative, got %d", cfg.Count)
	}
	if cfg.Producers <= 0 {
		cfg.Producers = 1
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = Devices()
	}
	for _, d := range cfg.Devices {
		if err := validateDevice(d); err != nil {
			return nil, errors.Wrap(err, "driver devices")
		}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Driver{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(seed)),
	}, nil
}

// Run splits Count triggers across the producers and returns once all of
// them are done or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, target Triggerer) (DriverStats, error) {
	stats := DriverStats{ByDevice: make(map[Device]int, len(d.cfg.Devices))}
	if target == nil {
		return stats, errors.New("driver target cannot be nil")
	}
	var statsMu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Producers; i++ {
		share := d.cfg.Count / d.cfg.Producers
		if i < d.cfg.Count%d.cfg.Producers {
			share++
		}
		if share == 0 {
			continue
		}
		producer := i
		group.Go(func() error {
			for n := 0; n < share; n++ {
				dev := d.pick()
				if err := target.TriggerInterrupt(dev); err != nil {
					return errors.Wrapf(err, "producer %d", producer)
				}
				statsMu.Lock()
				stats.Triggered++
				stats.ByDevice[dev]++
				statsMu.Unlock()

				if d.cfg.Interval <= 0 {
					continue
				}
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(d.cfg.Interval):
				}
			}
			return nil
		})
	}
	err := group.Wait()
	log.Debug().
		Int("triggered", stats.Triggered).
		Int("producers", d.cfg.Producers).
		Msg("driver finished")
	return stats, err
}

func (d *Driver) pick() Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Devices[d.rnd.Intn(len(d.cfg.Devices))]
}
