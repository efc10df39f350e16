// Package shutdown runs cleanup hooks when the process is asked to stop.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
)

var (
	mut     sync.Mutex                  //nolint:gochecknoglobals
	hooks   []func(ctx context.Context) //nolint:gochecknoglobals
	trigger chan os.Signal              //nolint:gochecknoglobals
)

// BeforeShutdown registers h. Hooks run once, most recently registered first,
// while the context returned by SetupHandler is still alive.
func BeforeShutdown(h func(ctx context.Context)) {
	mut.Lock()
	defer mut.Unlock()

	hooks = append(hooks, h)
}

// Shutdown starts the shutdown process as if a signal had arrived.
func Shutdown() {
	mut.Lock()
	defer mut.Unlock()

	if trigger != nil {
		select {
		case trigger <- os.Interrupt:
		default:
		}
	}
}

// SetupHandler returns a context that is canceled after SIGINT or SIGTERM
// arrives and the hooks have run.
func SetupHandler(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	mut.Lock()
	trigger = ch
	mut.Unlock()

	go func() {
		defer cancel()

		select {
		case sig := <-ch:
			slog.Warn("Received " + sig.String() + ", shutting down...")
		case <-ctx.Done():
		}

		signal.Stop(ch)

		mut.Lock()
		trigger = nil
		mut.Unlock()

		RunHooks(ctx)
	}()

	return ctx
}

// RunHooks runs and forgets the registered hooks.
func RunHooks(ctx context.Context) {
	mut.Lock()
	pending := hooks
	hooks = nil
	mut.Unlock()

	for _, h := range slices.Backward(pending) {
		h(ctx)
	}
}
