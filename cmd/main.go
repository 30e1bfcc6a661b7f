package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/httprunner/isrsim/internal/config"
	"github.com/httprunner/isrsim/internal/env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "isrsim",
	Short: "Simulate a prioritized, maskable interrupt controller",
	Long: `isrsim drives a simulated interrupt controller: devices raise interrupts
that are queued by priority, dropped while masked, and serviced one at a time
by a single ISR handler. Settings may also come from ISR_* variables in .env.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(rootLogLevel)
	},
}

var rootLogLevel string

func init() {
	_ = env.Ensure()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", config.String(config.EnvLogLevel, "info"), "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(
		newRunCmd(),
		newScenarioCmd(),
		newShellCmd(),
	)
}

func setupLogger(level string) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	if parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("isrsim command failed")
	}
}
