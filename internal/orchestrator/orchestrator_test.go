package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"rinkreel/internal/config"
	"rinkreel/internal/media/encoder"
	"rinkreel/internal/metrics"
	"rinkreel/internal/notifications"
	"rinkreel/internal/orchestrator"
	"rinkreel/internal/services"
	"rinkreel/internal/services/feedprovider"
	"rinkreel/internal/store"
	"rinkreel/internal/testsupport"
)

type stubProvider struct {
	mu          sync.Mutex
	authGate    chan struct{}
	authDelay   time.Duration
	locateErr   error
	locateCalls int
}

func (p *stubProvider) Authenticate(ctx context.Context) (*feedprovider.Session, error) {
	if p.authGate != nil {
		select {
		case <-p.authGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.authDelay > 0 {
		select {
		case <-time.After(p.authDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &feedprovider.Session{Token: "tok"}, nil
}

func (p *stubProvider) LocateFeed(ctx context.Context, rinkID string, date time.Time) (*feedprovider.FeedHandle, error) {
	p.mu.Lock()
	p.locateCalls++
	err := p.locateErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &feedprovider.FeedHandle{URL: "http://feeds.test/f", RinkID: rinkID, Date: date}, nil
}

func (p *stubProvider) FetchRange(ctx context.Context, feed *feedprovider.FeedHandle, startMS, endMS int64, dst io.Writer) (int64, error) {
	n, err := dst.Write([]byte("segment-data"))
	return int64(n), err
}

type stubEncoder struct {
	mu      sync.Mutex
	burnErr error
}

func (e *stubEncoder) Concat(ctx context.Context, inputs []string, outputPath string) error {
	return os.WriteFile(outputPath, []byte("stitched"), 0o644)
}

func (e *stubEncoder) BurnCaptions(ctx context.Context, inputPath string, captions []encoder.Caption, outputPath string) error {
	e.mu.Lock()
	err := e.burnErr
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("final"), 0o644)
}

func (e *stubEncoder) Probe(ctx context.Context, path string) (*encoder.ProbeResult, error) {
	return &encoder.ProbeResult{}, nil
}

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	provider *stubProvider
	encoder  *stubEncoder
	orch     *orchestrator.Orchestrator
	updates  *updateLog
}

type updateLog struct {
	mu   sync.Mutex
	jobs []store.Job
}

func (u *updateLog) record(job store.Job) {
	u.mu.Lock()
	u.jobs = append(u.jobs, job)
	u.mu.Unlock()
}

func (u *updateLog) snapshot() []store.Job {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]store.Job, len(u.jobs))
	copy(out, u.jobs)
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	provider := &stubProvider{}
	enc := &stubEncoder{}
	updates := &updateLog{}
	orch := orchestrator.New(cfg, st, provider, enc, notifications.NewService(cfg), metrics.New(), nil,
		orchestrator.WithPollInterval(10*time.Millisecond),
		orchestrator.WithObserver(updates.record))
	return &fixture{cfg: cfg, store: st, provider: provider, encoder: enc, orch: orch, updates: updates}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(f.orch.Stop)
}

func (f *fixture) waitForTerminal(t *testing.T, jobID string) *store.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := f.store.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job != nil && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestPipelineCompletesJob(t *testing.T) {
	f := newFixture(t)
	session := testsupport.SeedSession(t, f.store, 0, 10_000, 40_000)
	f.start(t)

	job, err := f.orch.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := f.waitForTerminal(t, job.ID)
	if done.Status != store.JobCompleted {
		t.Fatalf("status = %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.Progress != 100 {
		t.Fatalf("progress = %d", done.Progress)
	}
	if !strings.HasSuffix(done.FinalFile, "session_"+session.ID+"_final.mp4") {
		t.Fatalf("final file = %q", done.FinalFile)
	}
	if _, err := os.Stat(done.FinalFile); err != nil {
		t.Fatalf("final artifact missing: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}

	reloaded, err := f.store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reloaded.Status != store.SessionCompleted {
		t.Fatalf("session status = %s", reloaded.Status)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)
	session := testsupport.SeedSession(t, f.store, 0, 10_000, 40_000, 90_000)
	f.start(t)

	job, err := f.orch.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.waitForTerminal(t, job.ID)

	updates := f.updates.snapshot()
	if len(updates) == 0 {
		t.Fatal("no job updates observed")
	}
	last := -1
	for _, update := range updates {
		if update.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", update.Progress, last)
		}
		last = update.Progress
	}
	if last != 100 {
		t.Fatalf("final progress = %d", last)
	}
}

func TestWorkerSurvivesJobFailure(t *testing.T) {
	f := newFixture(t)
	first := testsupport.SeedSession(t, f.store, 0)
	second := testsupport.SeedSession(t, f.store, 0)

	f.provider.locateErr = services.Wrap(services.ErrNotFound, "locate", "feeds", "no feed available", nil)
	f.start(t)

	jobA, err := f.orch.Submit(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	failed := f.waitForTerminal(t, jobA.ID)
	if failed.Status != store.JobFailed {
		t.Fatalf("status = %s", failed.Status)
	}
	if !strings.Contains(failed.ErrorMessage, "no feed available") {
		t.Fatalf("error message = %q", failed.ErrorMessage)
	}

	f.provider.mu.Lock()
	f.provider.locateErr = nil
	f.provider.mu.Unlock()

	jobB, err := f.orch.Submit(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	done := f.waitForTerminal(t, jobB.ID)
	if done.Status != store.JobCompleted {
		t.Fatalf("second job status = %s (%s)", done.Status, done.ErrorMessage)
	}
}

func TestOnlyOneJobRunsAtATime(t *testing.T) {
	f := newFixture(t)
	f.provider.authDelay = 20 * time.Millisecond
	f.start(t)

	var jobIDs []string
	for i := 0; i < 4; i++ {
		session := testsupport.SeedSession(t, f.store, 0)
		job, err := f.orch.Submit(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		jobIDs = append(jobIDs, job.ID)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		running, err := f.store.ListJobs(context.Background(), store.JobRunning)
		if err != nil {
			t.Fatalf("list running: %v", err)
		}
		if len(running) > 1 {
			t.Fatalf("running jobs = %d, want at most 1", len(running))
		}

		remaining := 0
		for _, id := range jobIDs {
			job, err := f.store.GetJob(context.Background(), id)
			if err != nil {
				t.Fatalf("get job: %v", err)
			}
			if !job.Status.IsTerminal() {
				remaining++
			}
		}
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d jobs never reached a terminal state", remaining)
		}
		time.Sleep(2 * time.Millisecond)
	}

	for _, id := range jobIDs {
		job, err := f.store.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status != store.JobCompleted {
			t.Fatalf("job %s status = %s (%s)", id, job.Status, job.ErrorMessage)
		}
	}
}

func TestCancelQueuedJob(t *testing.T) {
	f := newFixture(t)
	session := testsupport.SeedSession(t, f.store, 0)

	// Worker not started: the job stays queued.
	job, err := f.orch.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancelled, err := f.orch.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != store.JobCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}

	// Cancelling again is a no-op.
	again, err := f.orch.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel of terminal job: %v", err)
	}
	if again.Status != store.JobCancelled {
		t.Fatalf("status = %s", again.Status)
	}
}

func TestCancelRunningJobStopsAtCheckpoint(t *testing.T) {
	f := newFixture(t)
	session := testsupport.SeedSession(t, f.store, 0)
	f.provider.authGate = make(chan struct{})
	f.start(t)

	job, err := f.orch.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Wait until the worker is inside the authenticate stage.
	deadline := time.Now().Add(5 * time.Second)
	for {
		current, err := f.store.GetJob(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if current.Status == store.JobRunning && current.Progress >= 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never started running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := f.orch.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(f.provider.authGate)

	done := f.waitForTerminal(t, job.ID)
	if done.Status != store.JobCancelled {
		t.Fatalf("status = %s", done.Status)
	}

	reloaded, err := f.store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reloaded.Status != store.SessionActive {
		t.Fatalf("session status = %s, want active after cancel", reloaded.Status)
	}
}

func TestOverlayFailureKeepsStitchedArtifact(t *testing.T) {
	f := newFixture(t)
	session := testsupport.SeedSession(t, f.store, 0, 40_000)
	f.encoder.burnErr = services.Wrap(services.ErrExternalTool, "overlay", "ffmpeg", "subtitle filter crashed", nil)
	f.start(t)

	job, err := f.orch.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := f.waitForTerminal(t, job.ID)
	if done.Status != store.JobFailed {
		t.Fatalf("status = %s", done.Status)
	}
	if done.StitchedFile == "" {
		t.Fatal("stitched file not recorded")
	}
	if _, err := os.Stat(done.StitchedFile); err != nil {
		t.Fatalf("stitched artifact missing: %v", err)
	}
	if done.FinalFile != "" {
		t.Fatalf("final file should be empty, got %q", done.FinalFile)
	}
}

func TestSessionWithoutCommentsFailsDuringRun(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	session := testsupport.SeedSession(t, f.store)

	job, err := f.orch.Submit(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := f.waitForTerminal(t, job.ID)
	if done.Status != store.JobFailed {
		t.Fatalf("status = %s", done.Status)
	}
	if !strings.Contains(done.ErrorMessage, "no comments") {
		t.Fatalf("error = %q", done.ErrorMessage)
	}
	if done.Progress > 50 {
		t.Fatalf("progress = %d", done.Progress)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.orch.Submit(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing session: err = %v", err)
	}

	session := testsupport.SeedSession(t, f.store, 0)
	if _, err := f.orch.Submit(context.Background(), session.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.orch.Submit(context.Background(), session.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("duplicate submit: err = %v", err)
	}
}
