// Package daemon owns the process lifecycle: serving HTTP, the metrics
// listener, and graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adtimokhin/handover/internal/config"
	"github.com/adtimokhin/handover/internal/log"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order.
type ShutdownHook func(ctx context.Context) error

// Deps carries everything the manager serves.
type Deps struct {
	Config         config.AppConfig
	APIHandler     http.Handler
	MetricsHandler http.Handler
}

// Manager starts the API and metrics servers and keeps them up until
// the context is cancelled or a server fails.
type Manager struct {
	deps Deps

	apiServer     *http.Server
	metricsServer *http.Server

	mu       sync.Mutex
	started  bool
	stopping bool
	hooks    []namedHook

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager builds a manager. Deps.APIHandler must be set; the
// metrics server is skipped when Deps.MetricsHandler is nil or the
// metrics address is empty.
func NewManager(deps Deps) (*Manager, error) {
	if deps.APIHandler == nil {
		return nil, fmt.Errorf("daemon: API handler is required")
	}
	return &Manager{
		deps:   deps,
		logger: log.WithComponent("daemon"),
	}, nil
}

// RegisterShutdownHook adds a cleanup step to run during shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Start runs the servers and blocks until ctx is cancelled or a server
// fails, then shuts everything down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon: manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.deps.Config.ListenAddr).
		Str("metrics_listen", m.deps.Config.MetricsAddr).
		Dur("shutdown_timeout", m.deps.Config.ShutdownTimeout).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)
	m.startMetricsServer(errChan)
	m.startAPIServer(errChan)

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("server error, initiating shutdown")
		if shutdownErr := m.Shutdown(ctx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		return m.Shutdown(ctx)
	}
}

func (m *Manager) startAPIServer(errChan chan<- error) {
	m.apiServer = &http.Server{
		Addr:              m.deps.Config.ListenAddr,
		Handler:           m.deps.APIHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info().
			Str("addr", m.apiServer.Addr).
			Msg("API server listening")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(log.FieldEvent, "api.server.failed").
				Msg("API server failed")
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()
}

func (m *Manager) startMetricsServer(errChan chan<- error) {
	if m.deps.MetricsHandler == nil || m.deps.Config.MetricsAddr == "" {
		return
	}

	m.metricsServer = &http.Server{
		Addr:              m.deps.Config.MetricsAddr,
		Handler:           m.deps.MetricsHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info().
			Str("addr", m.metricsServer.Addr).
			Msg("metrics server listening")
		if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(log.FieldEvent, "metrics.server.failed").
				Msg("metrics server failed")
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

// Shutdown drains both servers and runs the registered hooks in LIFO
// order, bounded by the configured shutdown timeout even when the
// caller's context is already cancelled.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon: manager not started")
	}
	m.stopping = true
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	m.logger.Info().Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deps.Config.ShutdownTimeout)
	defer cancel()

	var errs []error
	var g errgroup.Group
	if srv := m.apiServer; srv != nil {
		g.Go(func() error {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("API server shutdown: %w", err)
			}
			return nil
		})
	}
	if srv := m.metricsServer; srv != nil {
		g.Go(func() error {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("metrics server shutdown: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info().Msg("daemon manager stopped")
	return nil
}
