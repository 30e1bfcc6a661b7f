package main

import (
	"context"
	"time"

	"github.com/httprunner/isrsim"
	"github.com/httprunner/isrsim/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	defaults := config.LoadSimulation()
	var (
		flagCount        int
		flagInterval     time.Duration
		flagProducers    int
		flagServiceDelay time.Duration
		flagSettle       time.Duration
		flagDrain        bool
		flagMask         []string
		flagSeed         int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger random device interrupts and print the ISR execution log",
		RunE: func(cmd *cobra.Command, args []string) error {
			masked, err := isrsim.ParseDevices(flagMask)
			if err != nil {
				return err
			}
			driver, err := isrsim.NewDriver(isrsim.DriverConfig{
				Count:     flagCount,
				Interval:  flagInterval,
				Producers: flagProducers,
				Seed:      flagSeed,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ic := isrsim.NewInterruptController(isrsim.Config{ServiceDelay: flagServiceDelay})
			for _, d := range masked {
				if err := ic.SetMask(d, true); err != nil {
					return err
				}
			}
			log.Info().
				Str("machine", ic.MachineID()).
				Int("count", flagCount).
				Int("producers", flagProducers).
				Dur("interval", flagInterval).
				Dur("service_delay", ic.ServiceDelay()).
				Msg("starting interrupt simulation")
			if err := ic.StartHandler(ctx); err != nil {
				return err
			}

			stats, err := driver.Run(ctx, ic)
			if err != nil {
				return errors.Wrap(err, "drive interrupts")
			}
			if err := settle(ctx, ic, flagDrain, flagSettle); err != nil {
				return err
			}
			cancel()
			if err := ic.Wait(); err != nil {
				return err
			}

			entries := ic.ReadLog()
			log.Info().
				Int("triggered", stats.Triggered).
				Int("handled", len(entries)).
				Int("pending", len(ic.Pending())).
				Msg("simulation finished")
			return writeLog(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVar(&flagCount, "count", defaults.TriggerCount, "Number of interrupts to trigger")
	cmd.Flags().DurationVar(&flagInterval, "interval", defaults.TriggerInterval, "Pause after each trigger, per producer")
	cmd.Flags().IntVar(&flagProducers, "producers", defaults.Producers, "Number of concurrent triggering goroutines")
	cmd.Flags().DurationVar(&flagServiceDelay, "service-delay", defaults.ServiceDelay, "Simulated ISR execution time")
	cmd.Flags().DurationVar(&flagSettle, "settle", defaults.SettleDelay, "Time to let the handler work after the last trigger")
	cmd.Flags().BoolVar(&flagDrain, "drain", false, "Wait until every queued interrupt is handled instead of a fixed settle")
	cmd.Flags().StringSliceVar(&flagMask, "mask", nil, "Devices to mask before triggering (repeatable)")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "Random seed for device selection (0 = time based)")

	return cmd
}

func settle(ctx context.Context, ic *isrsim.InterruptController, drain bool, wait time.Duration) error {
	if drain {
		return ic.WaitIdle(ctx)
	}
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
