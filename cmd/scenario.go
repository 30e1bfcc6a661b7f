package main

import (
	"fmt"
	"time"

	"github.com/httprunner/isrsim"
	"github.com/httprunner/isrsim/internal/scenario"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newScenarioCmd() *cobra.Command {
	var flagTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "scenario FILE...",
		Short: "Replay YAML trigger/mask scenarios and check the service order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			out := cmd.OutOrStdout()
			for _, path := range args {
				sc, err := scenario.LoadFile(path)
				if err != nil {
					return err
				}
				res, err := scenario.Run(cmd.Context(), sc, scenario.Options{
					Notifier: isrsim.NewLogNotifier(sc.Name),
					Timeout:  flagTimeout,
				})
				if err != nil {
					return err
				}
				if res.Passed() {
					fmt.Fprintf(out, "PASS %s (%d handled)\n", res.Name, len(res.Log))
					continue
				}
				failed++
				fmt.Fprintf(out, "FAIL %s: %v\n", res.Name, res.Err)
			}
			log.Info().Int("scenarios", len(args)).Int("failed", failed).Msg("scenarios finished")
			if failed > 0 {
				return errors.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "Maximum time to wait for each scenario's queue to drain")
	return cmd
}
