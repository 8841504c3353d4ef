package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rinkreel/internal/logging"
	"rinkreel/internal/segmenter"
	"rinkreel/internal/services"
	"rinkreel/internal/store"
)

// errCancelled aborts the pipeline when a cancel flag is observed at a
// checkpoint.
var errCancelled = errors.New("job cancelled")

const (
	progressAuthenticate = 10
	progressSegments     = 20
	progressLocate       = 30
	progressFetchStart   = 50
	progressFetchEnd     = 80
	progressStitch       = 80
	progressOverlay      = 90
)

func (o *Orchestrator) processJob(ctx context.Context, job *store.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithSessionID(ctx, job.SessionID)
	logger := o.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSessionID, job.SessionID))
	started := time.Now()

	session, err := o.store.GetSession(ctx, job.SessionID)
	if err != nil || session == nil {
		if err == nil {
			err = fmt.Errorf("session %s not found", job.SessionID)
		}
		return o.failJob(ctx, logger, job, "", services.Wrap(services.ErrInternal, "start", "session", "loading session", err))
	}
	matchup := fmt.Sprintf("%s vs %s", session.HomeTeam, session.AwayTeam)

	if err := o.store.UpdateSessionStatus(ctx, session.ID, store.SessionProcessing); err != nil {
		logger.Warn("marking session processing failed", logging.Error(err))
	}
	logger.Info("job started", logging.String("matchup", matchup))
	if err := o.notifier.NotifyJobStarted(ctx, matchup); err != nil {
		logger.Warn("start notification failed", logging.Error(err))
	}

	err = o.runPipeline(ctx, logger, job, session)
	switch {
	case err == nil:
		if updateErr := o.store.UpdateSessionStatus(ctx, session.ID, store.SessionCompleted); updateErr != nil {
			logger.Warn("marking session completed failed", logging.Error(updateErr))
		}
		if o.metrics != nil {
			o.metrics.IncJobsFinished(string(store.JobCompleted))
			o.metrics.ObserveJobDuration(time.Since(started))
		}
		logger.Info("job completed",
			logging.String("final_file", job.FinalFile),
			logging.Duration("elapsed", time.Since(started)))
		if notifyErr := o.notifier.NotifyJobCompleted(ctx, matchup, job.FinalFile); notifyErr != nil {
			logger.Warn("completion notification failed", logging.Error(notifyErr))
		}
		return nil

	case errors.Is(err, errCancelled):
		job.SetCancelled(time.Now().UTC())
		if updateErr := o.store.UpdateJob(ctx, job); updateErr != nil {
			logger.Error("persisting cancelled job failed", logging.Error(updateErr))
		}
		o.observe(job)
		if updateErr := o.store.UpdateSessionStatus(ctx, session.ID, store.SessionActive); updateErr != nil {
			logger.Warn("restoring session status failed", logging.Error(updateErr))
		}
		if o.metrics != nil {
			o.metrics.IncJobsFinished(string(store.JobCancelled))
		}
		logger.Info("job cancelled")
		if notifyErr := o.notifier.NotifyJobCancelled(ctx, matchup); notifyErr != nil {
			logger.Warn("cancel notification failed", logging.Error(notifyErr))
		}
		return nil

	case errors.Is(err, context.Canceled):
		// Daemon shutdown mid-job; startup recovery fails the orphan.
		return err

	default:
		return o.failJob(ctx, logger, job, matchup, err)
	}
}

// runPipeline drives one job through every stage. Cancellation is checked at
// each checkpoint between stages.
func (o *Orchestrator) runPipeline(ctx context.Context, logger *slog.Logger, job *store.Job, session *store.Session) error {
	if err := o.checkpoint(ctx, job, progressAuthenticate, "Authenticating with video provider"); err != nil {
		return err
	}
	if _, err := o.provider.Authenticate(ctx); err != nil {
		return err
	}

	if err := o.checkpoint(ctx, job, progressSegments, "Generating video segments"); err != nil {
		return err
	}
	segments, err := segmenter.Build(session.ID, session.Comments, o.cfg.Processing.SegmentWindowMS)
	if err != nil {
		return services.Wrap(services.ErrValidation, "segments", "build", "building segment windows", err)
	}
	if len(segments) == 0 {
		return services.Wrap(services.ErrValidation, "segments", "build", "session has no comments to build segments from", nil)
	}
	logger.Info("segments generated", logging.Int("count", len(segments)))

	if err := o.checkpoint(ctx, job, progressLocate, "Locating rink feed"); err != nil {
		return err
	}
	feed, err := o.provider.LocateFeed(ctx, session.Rink.ProviderRinkID, session.GameDate)
	if err != nil {
		return err
	}
	logger.Info("feed located", logging.String("rink", session.Rink.ProviderRinkID))

	if err := o.checkpoint(ctx, job, progressFetchStart, "Fetching video segments"); err != nil {
		return err
	}
	total := len(segments)
	// Downloads complete on multiple goroutines; serialize job updates.
	var progressMu sync.Mutex
	fetchedBytes, err := o.fetch.FetchAll(ctx, feed, segments, func(done, _ int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		progress := progressFetchStart + (progressFetchEnd-progressFetchStart)*done/total
		job.SetProgress(progress, fmt.Sprintf("Fetching video segments (%d/%d)", done, total))
		if updateErr := o.store.UpdateJob(ctx, job); updateErr != nil {
			logger.Warn("persisting fetch progress failed", logging.Error(updateErr))
		}
		o.observe(job)
	})
	if err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.AddSegmentsFetched(total, fetchedBytes)
	}

	if err := o.checkpoint(ctx, job, progressStitch, "Stitching video segments"); err != nil {
		return err
	}
	stitched, err := o.assemble.Stitch(ctx, session.ID, segments)
	if err != nil {
		return err
	}
	// Persist the stitched artifact before the overlay stage so a later
	// failure still leaves a usable video on disk and on the job record.
	job.StitchedFile = stitched
	if err := o.store.UpdateJob(ctx, job); err != nil {
		logger.Warn("persisting stitched artifact failed", logging.Error(err))
	}

	if err := o.checkpoint(ctx, job, progressOverlay, "Adding comment overlays"); err != nil {
		return err
	}
	final, err := o.assemble.Overlay(ctx, session.ID, stitched, segments)
	if err != nil {
		return err
	}
	if probe, probeErr := o.assemble.Inspect(ctx, final); probeErr != nil {
		logger.Warn("probing final artifact failed", logging.Error(probeErr))
	} else {
		logger.Info("final artifact ready",
			logging.String("file", final),
			logging.Int64("duration_ms", probe.DurationMS),
			logging.Int64("size_bytes", probe.SizeBytes))
	}

	job.SetCompleted(final, time.Now().UTC())
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return services.Wrap(services.ErrInternal, "complete", "jobs", "persisting completed job", err)
	}
	o.observe(job)
	return nil
}

// checkpoint persists a progress update and honors any pending cancel
// request before the next stage begins.
func (o *Orchestrator) checkpoint(ctx context.Context, job *store.Job, progress int, step string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	flagged, err := o.store.CancelRequested(ctx, job.ID)
	if err != nil {
		return services.Wrap(services.ErrInternal, "checkpoint", "jobs", "reading cancel flag", err)
	}
	if flagged {
		return errCancelled
	}

	job.SetProgress(progress, step)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return services.Wrap(services.ErrInternal, "checkpoint", "jobs", "persisting progress", err)
	}
	o.observe(job)
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, job *store.Job, matchup string, cause error) error {
	message := services.Message(cause)
	job.SetFailed(message, time.Now().UTC())
	if err := o.store.UpdateJob(ctx, job); err != nil {
		logger.Error("persisting failed job failed", logging.Error(err))
	}
	o.observe(job)

	if err := o.store.UpdateSessionStatus(ctx, job.SessionID, store.SessionFailed); err != nil {
		logger.Warn("marking session failed failed", logging.Error(err))
	}
	if o.metrics != nil {
		o.metrics.IncJobsFinished(string(store.JobFailed))
	}
	logger.Error("job failed", logging.String("reason", message))
	if matchup != "" {
		if err := o.notifier.NotifyJobFailed(ctx, matchup, message); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
	return cause
}

func (o *Orchestrator) observe(job *store.Job) {
	if o.observer != nil {
		o.observer(*job)
	}
}
