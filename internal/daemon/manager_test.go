package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adtimokhin/handover/internal/config"
)

func testDeps() Deps {
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.ShutdownTimeout = 2 * time.Second
	return Deps{
		Config:     cfg,
		APIHandler: http.NewServeMux(),
	}
}

func TestNewManagerRequiresHandler(t *testing.T) {
	_, err := NewManager(Deps{})
	require.Error(t, err)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	m, err := NewManager(testDeps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after cancellation")
	}
}

func TestShutdownHooksRunInReverseOrder(t *testing.T) {
	m, err := NewManager(testDeps())
	require.NoError(t, err)

	var order []string
	m.RegisterShutdownHook("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.RegisterShutdownHook("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testDeps())
	require.NoError(t, err)
	assert.Error(t, m.Shutdown(context.Background()))
}

func TestShutdownIsIdempotent(t *testing.T) {
	m, err := NewManager(testDeps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.NoError(t, m.Shutdown(context.Background()))
}
