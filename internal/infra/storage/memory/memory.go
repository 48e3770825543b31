// Package memory provides in-memory implementations of the storage
// interfaces, used by tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/infra/storage"
)

// Storage is the shared in-memory backing for repo and task stores.
type Storage struct {
	repos map[string]*domain.Repo
	tasks map[string]*domain.Task
	mu    sync.RWMutex

	// failCeiling mirrors the quarantine threshold of the SQL store.
	failCeiling int

	// FailBulkUpdates makes UpdateClassificationsBulk return an error so
	// the per-item fallback path can be exercised.
	FailBulkUpdates bool
}

// NewStorage creates an empty in-memory storage with the given quarantine
// threshold.
func NewStorage(failCeiling int) *Storage {
	return &Storage{
		repos:       make(map[string]*domain.Repo),
		tasks:       make(map[string]*domain.Task),
		failCeiling: failCeiling,
	}
}

// PutRepo inserts or replaces a repository.
func (s *Storage) PutRepo(repo *domain.Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *repo
	s.repos[repo.FullName] = &clone
}

// GetRepo returns a copy of the stored repository, or nil.
func (s *Storage) GetRepo(fullName string) *domain.Repo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[fullName]
	if !ok {
		return nil
	}
	clone := *repo
	return &clone
}

// -----------------------------------------------------------------------------
// Repo store
// -----------------------------------------------------------------------------

// RepoRepo implements storage.RepoStore in memory.
type RepoRepo struct {
	store *Storage

	// Overrides are manually pinned categories; repos listed here are
	// never selected for classification.
	overrides map[string]bool
}

// NewRepoRepo creates an in-memory repo store.
func NewRepoRepo(store *Storage) *RepoRepo {
	return &RepoRepo{store: store, overrides: make(map[string]bool)}
}

// SetOverride marks a repository as manually categorised.
func (r *RepoRepo) SetOverride(fullName string) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.overrides[fullName] = true
}

func (r *RepoRepo) eligible(repo *domain.Repo) bool {
	if r.overrides[repo.FullName] {
		return false
	}
	return repo.ClassifyFails < r.store.failCeiling
}

func needsClassification(repo *domain.Repo) bool {
	if repo.Category == "" || repo.AIUpdatedAt == nil {
		return true
	}
	return repo.PushedAt != nil && repo.AIUpdatedAt.Before(*repo.PushedAt)
}

func (r *RepoRepo) selectLocked(force bool, afterFullName string) []*domain.Repo {
	var out []*domain.Repo
	for _, repo := range r.store.repos {
		if !r.eligible(repo) {
			continue
		}
		if force {
			if repo.FullName > afterFullName {
				out = append(out, repo)
			}
		} else if needsClassification(repo) {
			out = append(out, repo)
		}
	}

	if force {
		sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
		return out
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Category == "") != (b.Category == "") {
			return a.Category == ""
		}
		if (a.AIUpdatedAt == nil) != (b.AIUpdatedAt == nil) {
			return a.AIUpdatedAt == nil
		}
		ap, bp := pushedUnix(a), pushedUnix(b)
		if ap != bp {
			return ap > bp
		}
		if a.Stars != b.Stars {
			return a.Stars > b.Stars
		}
		return a.FullName < b.FullName
	})
	return out
}

func pushedUnix(repo *domain.Repo) int64 {
	if repo.PushedAt == nil {
		return 0
	}
	return repo.PushedAt.Unix()
}

func (r *RepoRepo) SelectForClassification(
	ctx context.Context,
	limit int,
	force bool,
	afterFullName string,
) ([]*domain.Repo, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	selected := r.selectLocked(force, afterFullName)
	if len(selected) > limit {
		selected = selected[:limit]
	}

	out := make([]*domain.Repo, len(selected))
	for i, repo := range selected {
		clone := *repo
		out[i] = &clone
	}
	return out, nil
}

func (r *RepoRepo) CountForClassification(ctx context.Context, force bool, afterFullName string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.selectLocked(force, afterFullName)), nil
}

func (r *RepoRepo) CountUnclassified(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, repo := range r.store.repos {
		if r.eligible(repo) && repo.Category == "" {
			count++
		}
	}
	return count, nil
}

func (r *RepoRepo) applyUpdateLocked(update *domain.ClassificationUpdate) error {
	repo, ok := r.store.repos[update.FullName]
	if !ok {
		return fmt.Errorf("update classification for %s: %w", update.FullName, storage.ErrNotFound)
	}
	now := time.Now()
	repo.Category = update.Category
	repo.Subcategory = update.Subcategory
	repo.AIConfidence = update.Confidence
	repo.AIUpdatedAt = &now
	repo.ClassifyFails = 0
	if update.Summary != "" {
		repo.ReadmeSummary = update.Summary
	}
	return nil
}

func (r *RepoRepo) UpdateClassification(ctx context.Context, update *domain.ClassificationUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.applyUpdateLocked(update)
}

func (r *RepoRepo) UpdateClassificationsBulk(
	ctx context.Context,
	updates []*domain.ClassificationUpdate,
) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.FailBulkUpdates {
		return 0, fmt.Errorf("bulk update failed: database is locked")
	}

	written := 0
	for _, update := range updates {
		if err := r.applyUpdateLocked(update); err == nil {
			written++
		}
	}
	return written, nil
}

func (r *RepoRepo) IncrementClassifyFailCount(ctx context.Context, fullNames []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, name := range fullNames {
		if repo, ok := r.store.repos[name]; ok {
			repo.ClassifyFails++
		}
	}
	return nil
}

func (r *RepoRepo) ResetClassifyFailCount(ctx context.Context, fullNames []string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var affected int64
	reset := func(repo *domain.Repo) {
		if repo.ClassifyFails > 0 {
			repo.ClassifyFails = 0
			affected++
		}
	}

	if fullNames == nil {
		for _, repo := range r.store.repos {
			reset(repo)
		}
		return affected, nil
	}
	for _, name := range fullNames {
		if repo, ok := r.store.repos[name]; ok {
			reset(repo)
		}
	}
	return affected, nil
}

func (r *RepoRepo) applyReadmeLocked(fetch domain.ReadmeFetch) {
	repo, ok := r.store.repos[fetch.FullName]
	if !ok {
		return
	}
	now := time.Now()
	repo.ReadmeLastAttemptAt = &now
	if fetch.Success {
		repo.ReadmeSummary = fetch.Summary
		repo.ReadmeFailures = 0
		if fetch.Summary == "" {
			repo.ReadmeEmpty = true
		}
		return
	}
	repo.ReadmeFailures++
}

func (r *RepoRepo) RecordReadmeFetch(ctx context.Context, fetch domain.ReadmeFetch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.applyReadmeLocked(fetch)
	return nil
}

func (r *RepoRepo) RecordReadmeFetches(ctx context.Context, fetches []domain.ReadmeFetch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, fetch := range fetches {
		r.applyReadmeLocked(fetch)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Task store
// -----------------------------------------------------------------------------

// TaskRepo implements storage.TaskStore in memory.
type TaskRepo struct {
	store *Storage
}

// NewTaskRepo creates an in-memory task store.
func NewTaskRepo(store *Storage) *TaskRepo {
	return &TaskRepo{store: store}
}

func (r *TaskRepo) CreateTask(ctx context.Context, task *domain.Task) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	clone := *task
	clone.CreatedAt = now
	clone.UpdatedAt = now
	r.store.tasks[task.TaskID] = &clone
	return nil
}

func (r *TaskRepo) UpdateTask(ctx context.Context, taskID string, update domain.TaskUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	task, ok := r.store.tasks[taskID]
	if !ok {
		return fmt.Errorf("update task %s: %w", taskID, storage.ErrNotFound)
	}
	if update.Status != "" {
		task.Status = update.Status
	}
	if update.StartedAt != nil {
		task.StartedAt = update.StartedAt
	}
	if update.FinishedAt != nil {
		task.FinishedAt = update.FinishedAt
	}
	if update.Message != nil {
		task.Message = *update.Message
	}
	if update.Result != nil {
		task.Result = *update.Result
	}
	if update.CursorFullName != nil {
		task.CursorFullName = *update.CursorFullName
	}
	task.UpdatedAt = time.Now()
	return nil
}

func (r *TaskRepo) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	task, ok := r.store.tasks[taskID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (r *TaskRepo) ResetStaleTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var affected int64
	for _, task := range r.store.tasks {
		active := task.Status == domain.TaskStatusQueued || task.Status == domain.TaskStatusRunning
		if active && task.UpdatedAt.Before(cutoff) {
			now := time.Now()
			task.Status = domain.TaskStatusFailed
			task.Message = "reset: task exceeded stale deadline"
			task.FinishedAt = &now
			task.UpdatedAt = now
			affected++
		}
	}
	return affected, nil
}
