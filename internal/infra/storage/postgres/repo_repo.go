package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/infra/storage"
)

// RepoRepo implements storage.RepoStore using PostgreSQL.
type RepoRepo struct {
	db          *DB
	failCeiling int
	retry       storage.RetryPolicy
}

// NewRepoRepo creates a new PostgreSQL repo store. failCeiling excludes
// repositories that already failed classification that many times.
func NewRepoRepo(db *DB, failCeiling int) *RepoRepo {
	return &RepoRepo{
		db:          db,
		failCeiling: failCeiling,
		retry:       storage.DefaultRetryPolicy(),
	}
}

// repoRow is the scan target; nullable columns are coalesced in SQL and
// topics arrive as a JSON document.
type repoRow struct {
	FullName            string     `db:"full_name"`
	Name                string     `db:"name"`
	Owner               string     `db:"owner"`
	HTMLURL             string     `db:"html_url"`
	Description         string     `db:"description"`
	Language            string     `db:"language"`
	Stars               int        `db:"stargazers_count"`
	Forks               int        `db:"forks_count"`
	Topics              []byte     `db:"topics"`
	PushedAt            *time.Time `db:"pushed_at"`
	UpdatedAt           *time.Time `db:"updated_at"`
	StarredAt           *time.Time `db:"starred_at"`
	Category            string     `db:"category"`
	Subcategory         string     `db:"subcategory"`
	AIConfidence        float64    `db:"ai_confidence"`
	AIUpdatedAt         *time.Time `db:"ai_updated_at"`
	ClassifyFails       int        `db:"classify_fail_count"`
	ReadmeSummary       string     `db:"readme_summary"`
	ReadmeEmpty         bool       `db:"readme_empty"`
	ReadmeFailures      int        `db:"readme_failures"`
	ReadmeLastAttemptAt *time.Time `db:"readme_last_attempt_at"`
}

func (row repoRow) toDomain() *domain.Repo {
	repo := &domain.Repo{
		FullName:            row.FullName,
		Name:                row.Name,
		Owner:               row.Owner,
		HTMLURL:             row.HTMLURL,
		Description:         row.Description,
		Language:            row.Language,
		Stars:               row.Stars,
		Forks:               row.Forks,
		PushedAt:            row.PushedAt,
		UpdatedAt:           row.UpdatedAt,
		StarredAt:           row.StarredAt,
		Category:            row.Category,
		Subcategory:         row.Subcategory,
		AIConfidence:        row.AIConfidence,
		AIUpdatedAt:         row.AIUpdatedAt,
		ClassifyFails:       row.ClassifyFails,
		ReadmeSummary:       row.ReadmeSummary,
		ReadmeEmpty:         row.ReadmeEmpty,
		ReadmeFailures:      row.ReadmeFailures,
		ReadmeLastAttemptAt: row.ReadmeLastAttemptAt,
	}
	if len(row.Topics) > 0 {
		_ = json.Unmarshal(row.Topics, &repo.Topics)
	}
	return repo
}

const repoColumns = `
	full_name, name, owner, html_url,
	COALESCE(description, '') AS description,
	COALESCE(language, '') AS language,
	COALESCE(stargazers_count, 0) AS stargazers_count,
	COALESCE(forks_count, 0) AS forks_count,
	COALESCE(topics, '[]'::jsonb) AS topics,
	pushed_at, updated_at, starred_at,
	COALESCE(category, '') AS category,
	COALESCE(subcategory, '') AS subcategory,
	COALESCE(ai_confidence, 0) AS ai_confidence,
	ai_updated_at,
	COALESCE(classify_fail_count, 0) AS classify_fail_count,
	COALESCE(readme_summary, '') AS readme_summary,
	COALESCE(readme_empty, FALSE) AS readme_empty,
	COALESCE(readme_failures, 0) AS readme_failures,
	readme_last_attempt_at`

// eligibleFilter excludes rows that were manually overridden and rows
// quarantined by the failure ceiling.
const eligibleFilter = `
	NULLIF(override_category, '') IS NULL
	AND (classify_fail_count IS NULL OR classify_fail_count < $1)`

// incrementalFilter keeps rows that were never classified or whose
// classification predates their last push.
const incrementalFilter = `
	AND (category IS NULL OR ai_updated_at IS NULL
		OR (pushed_at IS NOT NULL AND ai_updated_at < pushed_at))`

// SelectForClassification returns the next eligible page. Force mode walks
// the whole table in full_name order so the run is resumable from a cursor;
// incremental mode serves never-classified and stale rows first.
func (r *RepoRepo) SelectForClassification(
	ctx context.Context,
	limit int,
	force bool,
	afterFullName string,
) ([]*domain.Repo, error) {
	var query string
	var args []any
	if force {
		query = `SELECT ` + repoColumns + `
			FROM repos
			WHERE ` + eligibleFilter + ` AND full_name > $2
			ORDER BY full_name ASC
			LIMIT $3`
		args = []any{r.failCeiling, afterFullName, limit}
	} else {
		query = `SELECT ` + repoColumns + `
			FROM repos
			WHERE ` + eligibleFilter + incrementalFilter + `
			ORDER BY
				(category IS NULL) DESC,
				(ai_updated_at IS NULL) DESC,
				pushed_at DESC NULLS LAST,
				stargazers_count DESC,
				full_name ASC
			LIMIT $2`
		args = []any{r.failCeiling, limit}
	}

	var rows []repoRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select repos for classification: %w", err)
	}

	repos := make([]*domain.Repo, len(rows))
	for i, row := range rows {
		repos[i] = row.toDomain()
	}
	return repos, nil
}

// CountForClassification counts the rows the current run still has ahead of
// it, with the same mode and cursor semantics as SelectForClassification.
func (r *RepoRepo) CountForClassification(ctx context.Context, force bool, afterFullName string) (int, error) {
	var query string
	var args []any
	if force {
		query = `SELECT COUNT(*) FROM repos WHERE ` + eligibleFilter + ` AND full_name > $2`
		args = []any{r.failCeiling, afterFullName}
	} else {
		query = `SELECT COUNT(*) FROM repos WHERE ` + eligibleFilter + incrementalFilter
		args = []any{r.failCeiling}
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count repos for classification: %w", err)
	}
	return count, nil
}

// CountUnclassified counts eligible rows without a category.
func (r *RepoRepo) CountUnclassified(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM repos WHERE ` + eligibleFilter + ` AND category IS NULL`

	var count int
	if err := r.db.GetContext(ctx, &count, query, r.failCeiling); err != nil {
		return 0, fmt.Errorf("failed to count unclassified repos: %w", err)
	}
	return count, nil
}

const updateClassificationSQL = `
	UPDATE repos SET
		category = $2,
		subcategory = $3,
		ai_confidence = $4,
		tags = $5,
		tag_ids = $6,
		ai_provider = $7,
		ai_model = $8,
		readme_summary = CASE WHEN $9 <> '' THEN $9 ELSE readme_summary END,
		ai_keywords = $10,
		ai_reason = $11,
		decision_source = $12,
		rule_candidates = $13,
		ai_updated_at = NOW(),
		classify_fail_count = 0,
		updated_at = NOW()
	WHERE full_name = $1`

func classificationArgs(u *domain.ClassificationUpdate) ([]any, error) {
	tags, err := json.Marshal(emptyIfNil(u.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	tagIDs, err := json.Marshal(emptyIfNil(u.TagIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tag ids: %w", err)
	}
	keywords, err := json.Marshal(emptyIfNil(u.Keywords))
	if err != nil {
		return nil, fmt.Errorf("failed to encode keywords: %w", err)
	}
	candidates, err := json.Marshal(u.RuleCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule candidates: %w", err)
	}
	if u.RuleCandidates == nil {
		candidates = []byte("[]")
	}
	return []any{
		u.FullName,
		u.Category,
		u.Subcategory,
		u.Confidence,
		tags,
		tagIDs,
		u.Provider,
		u.Model,
		u.Summary,
		keywords,
		u.Reason,
		string(u.DecisionSource),
		candidates,
	}, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// UpdateClassification persists one result and clears the failure counter.
func (r *RepoRepo) UpdateClassification(ctx context.Context, update *domain.ClassificationUpdate) error {
	args, err := classificationArgs(update)
	if err != nil {
		return err
	}

	return storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, updateClassificationSQL, args...)
		if err != nil {
			return fmt.Errorf("failed to update classification for %s: %w", update.FullName, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update classification for %s: %w", update.FullName, storage.ErrNotFound)
		}
		return nil
	})
}

// UpdateClassificationsBulk persists a batch in one transaction. All-or-
// nothing: a failure rolls back and reports zero written so the caller can
// fall back to per-item updates.
func (r *RepoRepo) UpdateClassificationsBulk(
	ctx context.Context,
	updates []*domain.ClassificationUpdate,
) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	var written int
	err := storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		written = 0
		return r.inTx(ctx, func(tx *sqlx.Tx) error {
			for _, update := range updates {
				args, err := classificationArgs(update)
				if err != nil {
					return err
				}
				res, err := tx.ExecContext(ctx, updateClassificationSQL, args...)
				if err != nil {
					return fmt.Errorf("bulk update failed at %s: %w", update.FullName, err)
				}
				if n, err := res.RowsAffected(); err == nil && n > 0 {
					written++
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// IncrementClassifyFailCount bumps failure counters for the given repos.
func (r *RepoRepo) IncrementClassifyFailCount(ctx context.Context, fullNames []string) error {
	if len(fullNames) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`UPDATE repos
		 SET classify_fail_count = COALESCE(classify_fail_count, 0) + 1, updated_at = NOW()
		 WHERE full_name IN (?)`, fullNames)
	if err != nil {
		return fmt.Errorf("failed to build fail count query: %w", err)
	}
	query = r.db.Rebind(query)

	return storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to increment classify fail count: %w", err)
		}
		return nil
	})
}

// ResetClassifyFailCount zeroes failure counters; nil resets every row.
func (r *RepoRepo) ResetClassifyFailCount(ctx context.Context, fullNames []string) (int64, error) {
	query := `UPDATE repos SET classify_fail_count = 0, updated_at = NOW()
		WHERE COALESCE(classify_fail_count, 0) > 0`
	var args []any

	if fullNames != nil {
		if len(fullNames) == 0 {
			return 0, nil
		}
		in, inArgs, err := sqlx.In(query+` AND full_name IN (?)`, fullNames)
		if err != nil {
			return 0, fmt.Errorf("failed to build reset query: %w", err)
		}
		query = r.db.Rebind(in)
		args = inArgs
	}

	var affected int64
	err := storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to reset classify fail count: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

const recordReadmeSQL = `
	UPDATE repos SET
		readme_summary = CASE WHEN $2 THEN $3 ELSE readme_summary END,
		readme_empty = CASE WHEN $2 AND $3 = '' THEN TRUE ELSE readme_empty END,
		readme_failures = CASE WHEN $2 THEN 0 ELSE COALESCE(readme_failures, 0) + 1 END,
		readme_last_attempt_at = NOW(),
		updated_at = NOW()
	WHERE full_name = $1`

// RecordReadmeFetch stores one README fetch outcome. A successful empty
// fetch marks the repository readme_empty so it is never fetched again.
func (r *RepoRepo) RecordReadmeFetch(ctx context.Context, fetch domain.ReadmeFetch) error {
	return storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, recordReadmeSQL, fetch.FullName, fetch.Success, fetch.Summary)
		if err != nil {
			return fmt.Errorf("failed to record readme fetch for %s: %w", fetch.FullName, err)
		}
		return nil
	})
}

// RecordReadmeFetches stores a batch of README outcomes in one transaction.
func (r *RepoRepo) RecordReadmeFetches(ctx context.Context, fetches []domain.ReadmeFetch) error {
	if len(fetches) == 0 {
		return nil
	}

	return storage.WithRetry(ctx, r.retry, func(ctx context.Context) error {
		return r.inTx(ctx, func(tx *sqlx.Tx) error {
			for _, fetch := range fetches {
				_, err := tx.ExecContext(ctx, recordReadmeSQL, fetch.FullName, fetch.Success, fetch.Summary)
				if err != nil {
					return fmt.Errorf("failed to record readme fetch for %s: %w", fetch.FullName, err)
				}
			}
			return nil
		})
	})
}

func (r *RepoRepo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
