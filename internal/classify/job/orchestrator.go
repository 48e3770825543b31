// Package job runs classification passes over the repository table: paging,
// README prefetch, bounded-concurrency classification, persistence and
// progress tracking. One run may be in flight per process.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/starsort/internal/classify/engine"
	"github.com/vietddude/starsort/internal/classify/metrics"
	"github.com/vietddude/starsort/internal/core/config"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/infra/storage"
)

// ErrAlreadyRunning is returned when a start request races a live run.
var ErrAlreadyRunning = errors.New("a classification run is already in progress")

// ReadmeFetcher fetches README excerpts for classification context.
type ReadmeFetcher interface {
	FetchReadmeSummary(ctx context.Context, fullName string) (string, error)
}

// Cache invalidates read-cache prefixes after a run mutates the table.
type Cache interface {
	InvalidatePrefixes(ctx context.Context, prefixes ...string) (int64, error)
}

// Params configures one classification run. Zero values fall back to the
// orchestrator's configured defaults.
type Params struct {
	Limit          int
	Force          bool
	IncludeReadme  bool
	Concurrency    int
	CursorFullName string
	TaskID         string
}

// Orchestrator owns the single classification run of the process.
type Orchestrator struct {
	repos  storage.RepoStore
	tasks  storage.TaskStore
	engine *engine.Engine
	ai     engine.AIClassifier
	readme ReadmeFetcher
	cache  Cache
	cfg    config.ClassifyConfig
	log    *slog.Logger

	mu     sync.Mutex
	state  domain.JobState
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an orchestrator. ai, readme and cache may be nil when the
// corresponding collaborator is not configured.
func New(
	repos storage.RepoStore,
	tasks storage.TaskStore,
	eng *engine.Engine,
	ai engine.AIClassifier,
	readme ReadmeFetcher,
	cache Cache,
	cfg config.ClassifyConfig,
) *Orchestrator {
	return &Orchestrator{
		repos:  repos,
		tasks:  tasks,
		engine: eng,
		ai:     ai,
		readme: readme,
		cache:  cache,
		cfg:    cfg,
		log:    slog.Default().With("component", "job"),
	}
}

// Snapshot returns a copy of the current run state.
func (o *Orchestrator) Snapshot() domain.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stop requests cancellation of the running pass. The cursor written so far
// is preserved, so a later force run resumes without repeats.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Running || o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Wait blocks until the current run finishes. Used by tests and shutdown.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) clampParams(p Params) Params {
	if p.Limit <= 0 {
		p.Limit = o.cfg.BatchSize
	}
	if o.cfg.BatchSizeMax > 0 && p.Limit > o.cfg.BatchSizeMax {
		p.Limit = o.cfg.BatchSizeMax
	}
	if p.Concurrency <= 0 {
		p.Concurrency = o.cfg.Concurrency
	}
	if o.cfg.ConcurrencyMax > 0 && p.Concurrency > o.cfg.ConcurrencyMax {
		p.Concurrency = o.cfg.ConcurrencyMax
	}
	if p.TaskID == "" {
		p.TaskID = uuid.NewString()
	}
	return p
}

// Start launches a run in the background and returns its task id. A second
// start while one run is live returns ErrAlreadyRunning.
func (o *Orchestrator) Start(ctx context.Context, p Params) (string, error) {
	p = o.clampParams(p)

	o.mu.Lock()
	if o.state.Running {
		o.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	now := time.Now()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.done = make(chan struct{})
	o.state = domain.JobState{
		Running:     true,
		StartedAt:   &now,
		BatchSize:   p.Limit,
		Concurrency: p.Concurrency,
		TaskID:      p.TaskID,
	}
	done := o.done
	o.mu.Unlock()

	if err := o.tasks.CreateTask(ctx, &domain.Task{
		TaskID:         p.TaskID,
		TaskType:       "classify",
		Status:         domain.TaskStatusRunning,
		StartedAt:      &now,
		CursorFullName: p.CursorFullName,
	}); err != nil {
		cancel()
		o.mu.Lock()
		o.state.Running = false
		o.cancel = nil
		o.done = nil
		o.mu.Unlock()
		close(done)
		return "", fmt.Errorf("failed to create task record: %w", err)
	}

	metrics.JobRunning.Set(1)

	go func() {
		defer close(done)
		defer cancel()
		o.run(runCtx, p)
	}()

	return p.TaskID, nil
}

func (o *Orchestrator) run(ctx context.Context, p Params) {
	var runErr error
	processed, classified, failed := 0, 0, 0
	cursor := p.CursorFullName

	total, err := o.repos.CountForClassification(ctx, p.Force, cursor)
	if err != nil {
		o.log.Warn("failed to count repos ahead of run", "error", err)
		total = 0
	}
	o.setRemaining(total)

	batchIndex := 0
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}

		page, err := o.repos.SelectForClassification(ctx, p.Limit, p.Force, cursor)
		if err != nil {
			runErr = fmt.Errorf("failed to select page: %w", err)
			break
		}
		if len(page) == 0 {
			break
		}

		stats := o.processPage(ctx, page, p)
		processed += stats.processed
		classified += stats.classified
		failed += stats.failed
		batchIndex++

		metrics.JobProcessedTotal.Add(float64(stats.processed))

		if p.Force {
			cursor = page[len(page)-1].FullName
		}

		remaining := o.nextRemaining(ctx, p, total, processed, batchIndex, stats.classified, stats.failed > 0)
		o.updateProgress(processed, failed, remaining)

		if err := o.recordProgress(ctx, p, cursor, processed, classified, failed); err != nil {
			o.log.Warn("failed to record task progress", "task_id", p.TaskID, "error", err)
		}

		if stats.processed == 0 {
			break
		}
		if o.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
				break loop
			case <-time.After(o.cfg.BatchDelay):
			}
		}
	}

	o.finish(ctx, p, cursor, processed, classified, failed, runErr)
}

func (o *Orchestrator) setRemaining(remaining int) {
	o.mu.Lock()
	o.state.Remaining = remaining
	o.mu.Unlock()
	metrics.JobRemaining.Set(float64(remaining))
}

func (o *Orchestrator) updateProgress(processed, failed, remaining int) {
	o.mu.Lock()
	o.state.Processed = processed
	o.state.Failed = failed
	o.state.Remaining = remaining
	o.mu.Unlock()
	metrics.JobRemaining.Set(float64(remaining))
}

// nextRemaining keeps the remaining estimate honest without recounting the
// table after every batch. Force runs derive it from the initial total;
// incremental runs decrement by the batch's successful count between
// refreshes, and refresh on a period and after any batch with failures,
// since failed rows remain selectable and the decrement would drift.
func (o *Orchestrator) nextRemaining(
	ctx context.Context,
	p Params,
	total, processed, batchIndex, batchClassified int,
	batchFailed bool,
) int {
	if p.Force {
		if remaining := total - processed; remaining > 0 {
			return remaining
		}
		return 0
	}

	refreshEvery := o.cfg.RemainingRefreshEvery
	if refreshEvery <= 0 {
		refreshEvery = 5
	}
	if batchFailed || batchIndex%refreshEvery == 0 {
		count, err := o.repos.CountForClassification(ctx, false, "")
		if err == nil {
			return count
		}
		o.log.Warn("failed to refresh remaining count", "error", err)
	}

	o.mu.Lock()
	remaining := o.state.Remaining
	o.mu.Unlock()
	if remaining := remaining - batchClassified; remaining > 0 {
		return remaining
	}
	return 0
}

func (o *Orchestrator) recordProgress(ctx context.Context, p Params, cursor string, processed, classified, failed int) error {
	update := domain.TaskUpdate{
		Result: &domain.TaskResult{
			Processed:  processed,
			Classified: classified,
			Failed:     failed,
		},
	}
	if p.Force {
		update.CursorFullName = &cursor
	}
	return o.tasks.UpdateTask(ctx, p.TaskID, update)
}

func (o *Orchestrator) finish(ctx context.Context, p Params, cursor string, processed, classified, failed int, runErr error) {
	now := time.Now()
	status := domain.TaskStatusFinished
	message := fmt.Sprintf("processed %d, classified %d, failed %d", processed, classified, failed)
	if runErr != nil {
		status = domain.TaskStatusFailed
		message = runErr.Error()
	}

	// The task update runs on a fresh context so cancellation of the run
	// cannot lose the final record.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	update := domain.TaskUpdate{
		Status:     status,
		FinishedAt: &now,
		Message:    &message,
		Result: &domain.TaskResult{
			Processed:  processed,
			Classified: classified,
			Failed:     failed,
		},
	}
	if p.Force {
		update.CursorFullName = &cursor
	}
	if err := o.tasks.UpdateTask(finalCtx, p.TaskID, update); err != nil {
		o.log.Error("failed to record final task state", "task_id", p.TaskID, "error", err)
	}

	if o.cache != nil && processed > 0 {
		if n, err := o.cache.InvalidatePrefixes(finalCtx, "stats", "repos"); err != nil {
			o.log.Warn("cache invalidation failed", "error", err)
		} else {
			o.log.Info("cache invalidated", "keys", n)
		}
	}

	o.mu.Lock()
	o.state.Running = false
	o.state.FinishedAt = &now
	o.state.Processed = processed
	o.state.Failed = failed
	if runErr != nil {
		o.state.LastError = runErr.Error()
	}
	o.cancel = nil
	o.mu.Unlock()

	metrics.JobRunning.Set(0)

	if runErr != nil {
		o.log.Error("classification run failed",
			"task_id", p.TaskID, "processed", processed, "failed", failed, "error", runErr)
		return
	}
	o.log.Info("classification run finished",
		"task_id", p.TaskID, "processed", processed, "classified", classified, "failed", failed)
}
