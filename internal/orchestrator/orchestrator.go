// Package orchestrator runs the background processing worker: it claims
// queued jobs one at a time and drives each through the segment, fetch,
// stitch, and overlay stages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"rinkreel/internal/assembler"
	"rinkreel/internal/config"
	"rinkreel/internal/fetcher"
	"rinkreel/internal/logging"
	"rinkreel/internal/media/encoder"
	"rinkreel/internal/metrics"
	"rinkreel/internal/notifications"
	"rinkreel/internal/services"
	"rinkreel/internal/services/feedprovider"
	"rinkreel/internal/store"
)

// FeedProvider is the provider surface the pipeline needs.
type FeedProvider interface {
	Authenticate(ctx context.Context) (*feedprovider.Session, error)
	LocateFeed(ctx context.Context, rinkID string, date time.Time) (*feedprovider.FeedHandle, error)
	FetchRange(ctx context.Context, feed *feedprovider.FeedHandle, startMS, endMS int64, dst io.Writer) (int64, error)
}

// Orchestrator owns the single worker goroutine and the job lifecycle API.
type Orchestrator struct {
	cfg          *config.Config
	store        *store.Store
	provider     FeedProvider
	fetch        *fetcher.Fetcher
	assemble     *assembler.Assembler
	notifier     notifications.Service
	metrics      *metrics.Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	observer     func(store.Job)

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithPollInterval overrides how often the worker polls for queued jobs.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithObserver registers a callback invoked after every persisted job
// update.
func WithObserver(fn func(store.Job)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// New constructs an orchestrator. The provider also serves as the range
// fetcher for segment downloads; enc performs the media operations.
func New(cfg *config.Config, st *store.Store, provider FeedProvider, enc encoder.Encoder, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	o := &Orchestrator{
		cfg:          cfg,
		store:        st,
		provider:     provider,
		fetch:        fetcher.New(provider, cfg.Paths.StagingDir, cfg.Processing.FetchConcurrency, logger),
		assemble:     assembler.New(enc, cfg.Paths.OutputDir, cfg.Processing.CaptionDisplayMS, logger),
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		pollInterval: time.Duration(cfg.Processing.QueuePollInterval) * time.Second,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the session and enqueues a processing job. Submission is
// non-blocking: the job is persisted as queued and the worker is nudged.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string) (*store.Job, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "submit", "session", "loading session", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "submit", "session",
			fmt.Sprintf("session %s not found", sessionID), nil)
	}
	active, err := o.store.ListJobs(ctx, store.JobQueued, store.JobRunning)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "submit", "jobs", "checking active jobs", err)
	}
	for _, job := range active {
		if job.SessionID == sessionID {
			return nil, services.Wrap(services.ErrValidation, "submit", "jobs",
				"session already has a job queued or running", nil)
		}
	}

	job, err := o.store.CreateJob(ctx, sessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "submit", "jobs", "enqueueing job", err)
	}
	if o.metrics != nil {
		o.metrics.IncJobsSubmitted()
	}
	o.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSessionID, sessionID))

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Cancel cancels a job. A queued job transitions immediately; a running job
// is flagged and stops at its next checkpoint. Cancelling a job that already
// finished is a no-op returning the job unchanged.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*store.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "cancel", "jobs", "loading job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "cancel", "jobs",
			fmt.Sprintf("job %s not found", jobID), nil)
	}
	if job.Status.IsTerminal() {
		// Cancelling a finished job is a no-op.
		return job, nil
	}

	cancelled, err := o.store.MarkCancelled(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "cancel", "jobs", "cancelling queued job", err)
	}
	if cancelled {
		o.logger.Info("queued job cancelled", logging.String(logging.FieldJobID, jobID))
		if o.metrics != nil {
			o.metrics.IncJobsFinished(string(store.JobCancelled))
		}
		return o.store.GetJob(ctx, jobID)
	}

	flagged, err := o.store.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "cancel", "jobs", "flagging running job", err)
	}
	if !flagged {
		// The job reached a terminal state between the two updates.
		return o.store.GetJob(ctx, jobID)
	}
	o.logger.Info("cancel requested for running job", logging.String(logging.FieldJobID, jobID))
	return o.store.GetJob(ctx, jobID)
}

// Start launches the worker goroutine.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("orchestrator already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	go o.run(runCtx)
	return nil
}

// Stop halts the worker and waits for the in-flight job update to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := o.store.NextQueuedJob(ctx)
		if err != nil {
			o.logger.Error("claiming next job failed", logging.Error(err))
			o.waitForWork(ctx)
			continue
		}
		if job == nil {
			o.waitForWork(ctx)
			continue
		}

		if err := o.processJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Job failures are recorded on the job; the worker keeps going.
			o.logger.Error("job processing failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		}
	}
}

func (o *Orchestrator) waitForWork(ctx context.Context) {
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-o.wake:
	case <-timer.C:
	}
}
