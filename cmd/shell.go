package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/httprunner/isrsim"
	"github.com/httprunner/isrsim/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newShellCmd() *cobra.Command {
	var flagServiceDelay time.Duration

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Trigger and mask interrupts interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "isr> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return errors.Wrap(err, "failed to create readline")
			}
			defer rl.Close()

			// Route log lines through readline so they do not break the prompt.
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: rl.Stderr()}).With().Timestamp().Logger()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ic := isrsim.NewInterruptController(isrsim.Config{ServiceDelay: flagServiceDelay})
			if err := ic.StartHandler(ctx); err != nil {
				return err
			}
			sh := &shell{ic: ic, out: rl.Stdout()}
			sh.printHelp()

			for ctx.Err() == nil {
				line, err := rl.Readline()
				if err != nil {
					if err == readline.ErrInterrupt {
						continue
					}
					break
				}
				if sh.exec(line) {
					break
				}
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			cancel()
			return ic.Wait()
		},
	}

	cmd.Flags().DurationVar(&flagServiceDelay, "service-delay", config.Duration(config.EnvServiceDelay, 500*time.Millisecond), "Simulated ISR execution time")
	return cmd
}

type shell struct {
	ic  *isrsim.InterruptController
	out io.Writer
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "trigger", "t":
		s.cmdTrigger(args)
	case "mask", "m":
		s.cmdMask(args, true)
	case "unmask", "u":
		s.cmdMask(args, false)
	case "pending", "p":
		fmt.Fprintf(s.out, "pending: %s\n", formatDevices(s.ic.Pending()))
	case "log", "l":
		_ = writeLog(s.out, s.ic.ReadLog())
	case "status", "s":
		fmt.Fprintf(s.out, "handler: %s\n", s.ic.State())
		fmt.Fprintf(s.out, "masks:   %s\n", formatMasks(s.ic.Masks()))
		fmt.Fprintf(s.out, "pending: %s\n", formatDevices(s.ic.Pending()))
		fmt.Fprintf(s.out, "handled: %d\n", len(s.ic.ReadLog()))
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *shell) cmdTrigger(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: trigger <device> [device...]")
		return
	}
	devices, err := isrsim.ParseDevices(args)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	for _, d := range devices {
		if err := s.ic.TriggerInterrupt(d); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
	}
}

func (s *shell) cmdMask(args []string, masked bool) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: mask|unmask <device>")
		return
	}
	d, err := isrsim.ParseDevice(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if err := s.ic.SetMask(d, masked); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
Interrupt Controller Commands:
  trigger <dev>...   - Raise interrupts (KEYBOARD, MOUSE, PRINTER)
  mask <dev>         - Drop future interrupts from a device
  unmask <dev>       - Accept interrupts from a device again
  pending            - Show queued interrupts in service order
  log                - Print the ISR execution log
  status             - Show handler state, masks, and queue
  help               - Show this help
  quit               - Exit`)
}
