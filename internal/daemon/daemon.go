// Package daemon ties the store, orchestrator, and HTTP API together and
// enforces single-instance execution with a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"rinkreel/internal/config"
	"rinkreel/internal/logging"
	"rinkreel/internal/metrics"
	"rinkreel/internal/orchestrator"
	"rinkreel/internal/store"
)

// Daemon coordinates background processing and the HTTP API.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics

	lockPath string
	lock     *flock.Flock

	server   *http.Server
	listener net.Listener

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, orch *orchestrator.Orchestrator, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "rinkreel.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    st,
		orch:     orch,
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers orphaned jobs, launches the
// worker, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rinkreel daemon instance is already running")
	}

	orphans, err := d.store.FailOrphanedRunning(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if orphans > 0 {
		d.logger.Warn("failed jobs left running by a previous instance",
			logging.Int64("count", orphans))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.orch.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker: %w", err)
	}

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		d.orch.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("bind api listener: %w", err)
	}
	d.listener = listener
	d.server = &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("api server stopped", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("addr", listener.Addr().String()),
		logging.String("lock", d.lockPath))
	return nil
}

// Addr returns the bound API address, or empty when not running.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop shuts down the API server, stops the worker, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("api shutdown incomplete", logging.Error(err))
		}
		cancel()
		d.server = nil
		d.listener = nil
	}
	d.orch.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
