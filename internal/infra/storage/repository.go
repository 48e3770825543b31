// Package storage defines the persistence interfaces used by the
// classification pipeline, plus the retry policy for contended writes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/starsort/internal/core/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RepoStore is the persistence surface for starred repositories.
type RepoStore interface {
	// SelectForClassification returns the next page of repositories
	// eligible for classification. In force mode the page walks all
	// eligible rows ordered by full_name, strictly after afterFullName.
	// In incremental mode it returns unclassified and stale rows first
	// and ignores the cursor.
	SelectForClassification(ctx context.Context, limit int, force bool, afterFullName string) ([]*domain.Repo, error)

	// CountForClassification counts the rows SelectForClassification
	// would eventually visit, given the same mode and cursor.
	CountForClassification(ctx context.Context, force bool, afterFullName string) (int, error)

	// CountUnclassified counts eligible rows with no category yet.
	CountUnclassified(ctx context.Context) (int, error)

	// UpdateClassification persists one classification result and resets
	// the row's failure count.
	UpdateClassification(ctx context.Context, update *domain.ClassificationUpdate) error

	// UpdateClassificationsBulk persists a batch in one transaction and
	// returns how many rows were written. A failed transaction writes
	// nothing; callers fall back to per-item updates.
	UpdateClassificationsBulk(ctx context.Context, updates []*domain.ClassificationUpdate) (int, error)

	// IncrementClassifyFailCount bumps the failure counter for the given
	// repositories. Rows at the ceiling stop being selected.
	IncrementClassifyFailCount(ctx context.Context, fullNames []string) error

	// ResetClassifyFailCount zeroes failure counters. A nil slice resets
	// every row; returns the number of rows touched.
	ResetClassifyFailCount(ctx context.Context, fullNames []string) (int64, error)

	// RecordReadmeFetch stores a README fetch outcome for one repository.
	RecordReadmeFetch(ctx context.Context, fetch domain.ReadmeFetch) error

	// RecordReadmeFetches stores a batch of README fetch outcomes.
	RecordReadmeFetches(ctx context.Context, fetches []domain.ReadmeFetch) error
}

// TaskStore tracks background task lifecycle records.
type TaskStore interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	UpdateTask(ctx context.Context, taskID string, update domain.TaskUpdate) error
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// ResetStaleTasks marks tasks stuck in queued or running for longer
	// than the given age as failed. Returns the number reset.
	ResetStaleTasks(ctx context.Context, olderThan time.Duration) (int64, error)
}
