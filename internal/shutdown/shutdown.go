// Package shutdown turns SIGINT/SIGTERM into context cancellation and runs
// cleanup hooks once the supervisor has finalized.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager handles graceful shutdown
type Manager struct {
	shutdownFuncs []namedFunc
	mu            sync.Mutex
	timeout       time.Duration
	logger        *zap.Logger
	once          sync.Once
	force         chan struct{}
	forceOnce     sync.Once
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		force:   make(chan struct{}),
	}
}

// Register adds a shutdown function
// Functions are called in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// NotifyContext returns a context cancelled on the first SIGINT or SIGTERM.
// A second signal closes Forced. Signals stay captured until the returned
// stop func is called, so the process cannot die with its worker still up.
func (m *Manager) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	stopped := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		defer signal.Stop(sigChan)
		received := 0
		for {
			select {
			case sig := <-sigChan:
				received++
				switch received {
				case 1:
					m.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
					cancel()
				case 2:
					m.logger.Warn("received second signal, forcing stop", zap.String("signal", sig.String()))
					m.forceOnce.Do(func() { close(m.force) })
				default:
					m.logger.Warn("already forcing stop", zap.String("signal", sig.String()))
				}
			case <-stopped:
				return
			}
		}
	}()

	return ctx, func() {
		cancel()
		stopOnce.Do(func() { close(stopped) })
	}
}

// Forced is closed when a second shutdown signal arrives
func (m *Manager) Forced() <-chan struct{} {
	return m.force
}

// Shutdown executes all registered shutdown functions once, within the timeout
func (m *Manager) Shutdown() error {
	var err error
	m.once.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
			f := m.shutdownFuncs[i]
			if ferr := f.fn(ctx); ferr != nil {
				m.logger.Warn("shutdown step failed", zap.String("step", f.name), zap.Error(ferr))
				errs = append(errs, fmt.Errorf("%s: %w", f.name, ferr))
				continue
			}
			m.logger.Debug("shutdown step complete", zap.String("step", f.name))
		}
		err = errors.Join(errs...)
	})
	return err
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
