package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	mut.Lock()
	defer mut.Unlock()

	hooks = nil
	trigger = nil
}

//nolint:paralleltest // Tests share the global hook list.
func TestRunHooks(t *testing.T) {
	reset()

	var order []string

	BeforeShutdown(func(context.Context) { order = append(order, "telemetry") })
	BeforeShutdown(func(context.Context) { order = append(order, "workers") })

	RunHooks(t.Context())
	RunHooks(t.Context())

	assert.Equal(t, []string{"workers", "telemetry"}, order)
}

//nolint:paralleltest // Tests share the global hook list.
func TestSetupHandler(t *testing.T) {
	reset()

	ctx := SetupHandler(context.Background())
	require.NoError(t, ctx.Err())

	alive := make(chan bool, 1)

	BeforeShutdown(func(hookCtx context.Context) {
		alive <- hookCtx.Err() == nil
	})

	Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not canceled after shutdown")
	}

	assert.True(t, <-alive, "hooks run before the context is canceled")

	Shutdown()
}

//nolint:paralleltest // Tests share the global hook list.
func TestSetupHandler_ParentCanceled(t *testing.T) {
	reset()

	parent, cancel := context.WithCancel(context.Background())

	ran := make(chan struct{})

	ctx := SetupHandler(parent)
	BeforeShutdown(func(context.Context) { close(ran) })

	cancel()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("hooks did not run after the parent was canceled")
	}

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
