package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/infra/storage"
)

// TaskRepo implements storage.TaskStore using PostgreSQL.
type TaskRepo struct {
	db    *DB
	retry storage.RetryPolicy
}

// NewTaskRepo creates a new PostgreSQL task store.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db, retry: storage.DefaultRetryPolicy()}
}

type taskRow struct {
	TaskID         string     `db:"task_id"`
	TaskType       string     `db:"task_type"`
	Status         string     `db:"status"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	StartedAt      *time.Time `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
	Message        string     `db:"message"`
	Result         []byte     `db:"result"`
	CursorFullName string     `db:"cursor_full_name"`
}

func (row taskRow) toDomain() *domain.Task {
	task := &domain.Task{
		TaskID:         row.TaskID,
		TaskType:       row.TaskType,
		Status:         domain.TaskStatus(row.Status),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
		Message:        row.Message,
		CursorFullName: row.CursorFullName,
	}
	if len(row.Result) > 0 {
		_ = json.Unmarshal(row.Result, &task.Result)
	}
	return task
}

// CreateTask inserts a new task record.
func (r *TaskRepo) CreateTask(ctx context.Context, task *domain.Task) error {
	result, err := json.Marshal(task.Result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	return storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO tasks (task_id, task_type, status, created_at, updated_at,
				started_at, finished_at, message, result, cursor_full_name)
			VALUES ($1, $2, $3, NOW(), NOW(), $4, $5, $6, $7, $8)`,
			task.TaskID, task.TaskType, string(task.Status),
			task.StartedAt, task.FinishedAt, task.Message, result, task.CursorFullName)
		if err != nil {
			return fmt.Errorf("failed to create task %s: %w", task.TaskID, err)
		}
		return nil
	})
}

// UpdateTask applies a partial status transition. Nil fields in the update
// leave the stored values untouched.
func (r *TaskRepo) UpdateTask(ctx context.Context, taskID string, update domain.TaskUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{taskID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != "" {
		add("status", string(update.Status))
	}
	if update.StartedAt != nil {
		add("started_at", *update.StartedAt)
	}
	if update.FinishedAt != nil {
		add("finished_at", *update.FinishedAt)
	}
	if update.Message != nil {
		add("message", *update.Message)
	}
	if update.Result != nil {
		result, err := json.Marshal(*update.Result)
		if err != nil {
			return fmt.Errorf("failed to encode task result: %w", err)
		}
		add("result", result)
	}
	if update.CursorFullName != nil {
		add("cursor_full_name", *update.CursorFullName)
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE task_id = $1", strings.Join(sets, ", "))

	return storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", taskID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update task %s: %w", taskID, storage.ErrNotFound)
		}
		return nil
	})
}

// GetTask retrieves a task by ID.
func (r *TaskRepo) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row, `
		SELECT task_id, task_type, status, created_at, updated_at,
			started_at, finished_at,
			COALESCE(message, '') AS message,
			result,
			COALESCE(cursor_full_name, '') AS cursor_full_name
		FROM tasks WHERE task_id = $1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return row.toDomain(), nil
}

// ResetStaleTasks fails tasks stuck in queued or running past the given age.
// Runs at startup so a crashed process never leaves a task running forever.
func (r *TaskRepo) ResetStaleTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	var affected int64
	err := storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
			UPDATE tasks SET
				status = $1,
				message = 'reset: task exceeded stale deadline',
				finished_at = NOW(),
				updated_at = NOW()
			WHERE status IN ($2, $3) AND updated_at < $4`,
			string(domain.TaskStatusFailed),
			string(domain.TaskStatusQueued), string(domain.TaskStatusRunning),
			cutoff)
		if err != nil {
			return fmt.Errorf("failed to reset stale tasks: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}
