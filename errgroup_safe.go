package isrsim

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	restartBackoff    = 50 * time.Millisecond
	maxRestartBackoff = 5 * time.Second
)

// groupGoSafe runs fn on group and restarts it after a panic, doubling the
// pause between restarts. A cancelled ctx ends the restart loop and the
// goroutine returns nil. Errors returned by fn are passed to the group
// unchanged.
// Panics are reported on stderr, not through the structured logger.
func groupGoSafe(ctx context.Context, group *errgroup.Group, name string, fn func(context.Context) error) {
	if group == nil || fn == nil {
		return
	}
	group.Go(func() error {
		backoff := restartBackoff
		for restarts := 0; ; restarts++ {
			if ctx.Err() != nil {
				return nil
			}
			recovered, stack, err := runRecovered(ctx, fn)
			if recovered == nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked (restart %d): %v\n%s\n", name, restarts+1, recovered, stack)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxRestartBackoff {
				backoff = maxRestartBackoff
			}
		}
	})
}

func runRecovered(ctx context.Context, fn func(context.Context) error) (recovered any, stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
			stack = debug.Stack()
		}
	}()
	return nil, nil, fn(ctx)
}
