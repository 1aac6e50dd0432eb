// Package repo provides the scoring queue repository implementation
package repo

import (
	"context"
	"time"

	"scorekeeper/internal/modkit/repokit"
	"scorekeeper/internal/services/engine/domain"
)

// Repo defines the scoring queue repository contract
type Repo interface {
	// Enqueue inserts a pending item, or revives one parked in the terminal
	// error state under the same unique key. Returns the item id and true on
	// insert or revival, zero and false when a live duplicate already exists
	Enqueue(ctx context.Context, item domain.QueueItem) (int64, bool, error)

	Get(ctx context.Context, id int64) (domain.QueueItem, error)

	// Claim transitions a pending, due item to running and bumps attempts.
	// Returns false when another worker already claimed it
	Claim(ctx context.Context, id int64) (domain.QueueItem, bool, error)

	// Lease claims up to n due pending items of a kind in one round trip
	Lease(ctx context.Context, kind domain.Kind, n int) ([]domain.QueueItem, error)

	MarkCompleted(ctx context.Context, id int64) error
	MarkPendingRetry(ctx context.Context, id int64, lastErr string, backoff time.Duration) error
	MarkError(ctx context.Context, id int64, lastErr string) error

	// Defer returns a claimed item to pending without charging the attempt
	// budget. Waiting on the fan-in barrier is not a failure
	Defer(ctx context.Context, id int64, reason string, backoff time.Duration) error

	// CountRunning counts in-flight items of a kind for admission control
	CountRunning(ctx context.Context, kind domain.Kind) (int, error)

	// OutstandingRaw counts live raw jobs for an identity; zero means the
	// fan-in barrier is open and aggregation may proceed
	OutstandingRaw(ctx context.Context, id domain.Identity) (int, error)

	// ListStaleRunning finds running items whose lease outlived the timeout
	ListStaleRunning(ctx context.Context, olderThan time.Duration) ([]domain.QueueItem, error)

	// ListDuePending finds pending items that are due for (re)dispatch
	ListDuePending(ctx context.Context, limit int) ([]domain.QueueItem, error)

	// PruneCompleted deletes completed items older than the retention window
	PruneCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

type (
	// PG is a Postgres scoring queue repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres scoring queue repository
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const itemColumns = `
	id, kind, user_id, project_id, signal, day, test_tag, unique_key,
	status, attempts, last_error, enqueued_at, started_at, next_attempt_at, updated_at
`

// Enqueue inserts a pending item; the unique key makes live duplicates a
// no-op. An existing row in the terminal error state is revived instead,
// reset to pending with a fresh attempt budget, so a new trigger can retry
// an identity-day whose earlier run exhausted its attempts
func (r *queries) Enqueue(ctx context.Context, item domain.QueueItem) (int64, bool, error) {
	const sql = `
		INSERT INTO score_queue
			(kind, user_id, project_id, signal, day, test_tag, unique_key,
			 status, attempts, last_error, enqueued_at, next_attempt_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, '', NOW(), NOW(), NOW())
		ON CONFLICT (unique_key) DO UPDATE
		SET status = 'pending', attempts = 0, last_error = '',
		    started_at = NULL, next_attempt_at = NOW(), updated_at = NOW()
		WHERE score_queue.status = 'error'
		RETURNING id
	`
	key := item.UniqueKey
	if key == "" {
		key = domain.BuildUniqueKey(item.Kind, item.Ident(), item.Day)
	}
	rows, err := r.q.Query(ctx, sql,
		item.Kind, item.UserID, item.ProjectID, item.Signal, item.Day, item.TestTag, key,
	)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, false, err
	}
	return id, true, rows.Err()
}

// Get fetches one queue item by id
func (r *queries) Get(ctx context.Context, id int64) (domain.QueueItem, error) {
	const sql = `SELECT ` + itemColumns + ` FROM score_queue WHERE id = $1`
	return scanItem(r.q.QueryRow(ctx, sql, id))
}

// Claim transitions pending to running for one item
func (r *queries) Claim(ctx context.Context, id int64) (domain.QueueItem, bool, error) {
	const sql = `
		UPDATE score_queue
		SET status = 'running', attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND next_attempt_at <= NOW()
		RETURNING ` + itemColumns
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return domain.QueueItem{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.QueueItem{}, false, rows.Err()
	}
	item, err := scanItem(rows)
	if err != nil {
		return domain.QueueItem{}, false, err
	}
	return item, true, rows.Err()
}

// Lease claims up to n due pending items of a kind
func (r *queries) Lease(ctx context.Context, kind domain.Kind, n int) ([]domain.QueueItem, error) {
	const sql = `
		WITH cte AS (
			SELECT id
			FROM score_queue
			WHERE kind = $1 AND status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE score_queue q
		SET status = 'running', attempts = q.attempts + 1, started_at = NOW(), updated_at = NOW()
		FROM cte
		WHERE q.id = cte.id
		RETURNING ` + itemColumns
	rows, err := r.q.Query(ctx, sql, kind, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// MarkCompleted records successful processing
func (r *queries) MarkCompleted(ctx context.Context, id int64) error {
	const sql = `
		UPDATE score_queue
		SET status = 'completed', last_error = '', updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`
	_, err := r.q.Exec(ctx, sql, id)
	return err
}

// MarkPendingRetry returns a failed item to pending with a backoff
func (r *queries) MarkPendingRetry(ctx context.Context, id int64, lastErr string, backoff time.Duration) error {
	const sql = `
		UPDATE score_queue
		SET status = 'pending', last_error = $2, started_at = NULL,
		    next_attempt_at = NOW() + $3::interval, updated_at = NOW()
		WHERE id = $1 AND status IN ('running', 'pending')
	`
	_, err := r.q.Exec(ctx, sql, id, lastErr, backoff.String())
	return err
}

// Defer returns a running item to pending and hands its claim attempt back
func (r *queries) Defer(ctx context.Context, id int64, reason string, backoff time.Duration) error {
	const sql = `
		UPDATE score_queue
		SET status = 'pending', attempts = GREATEST(attempts - 1, 0), last_error = $2,
		    started_at = NULL, next_attempt_at = NOW() + $3::interval, updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`
	_, err := r.q.Exec(ctx, sql, id, reason, backoff.String())
	return err
}

// MarkError parks an item in the terminal error state
func (r *queries) MarkError(ctx context.Context, id int64, lastErr string) error {
	const sql = `
		UPDATE score_queue
		SET status = 'error', last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.q.Exec(ctx, sql, id, lastErr)
	return err
}

// CountRunning counts in-flight items of a kind
func (r *queries) CountRunning(ctx context.Context, kind domain.Kind) (int, error) {
	const sql = `SELECT COUNT(*) FROM score_queue WHERE kind = $1 AND status = 'running'`
	var n int
	err := r.q.QueryRow(ctx, sql, kind).Scan(&n)
	return n, err
}

// OutstandingRaw counts pending or running raw jobs for an identity
func (r *queries) OutstandingRaw(ctx context.Context, id domain.Identity) (int, error) {
	const sql = `
		SELECT COUNT(*)
		FROM score_queue
		WHERE kind = 'raw_score'
		  AND user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
		  AND status IN ('pending', 'running')
	`
	var n int
	err := r.q.QueryRow(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag).Scan(&n)
	return n, err
}

// ListStaleRunning finds running items started before NOW() - olderThan
func (r *queries) ListStaleRunning(ctx context.Context, olderThan time.Duration) ([]domain.QueueItem, error) {
	const sql = `
		SELECT ` + itemColumns + `
		FROM score_queue
		WHERE status = 'running' AND started_at < NOW() - $1::interval
		ORDER BY id
	`
	rows, err := r.q.Query(ctx, sql, olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListDuePending finds pending items ready for dispatch
func (r *queries) ListDuePending(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	const sql = `
		SELECT ` + itemColumns + `
		FROM score_queue
		WHERE status = 'pending' AND next_attempt_at <= NOW()
		ORDER BY id
		LIMIT $1
	`
	rows, err := r.q.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// PruneCompleted deletes completed items past retention
func (r *queries) PruneCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	const sql = `
		DELETE FROM score_queue
		WHERE status = 'completed' AND updated_at < NOW() - $1::interval
	`
	tag, err := r.q.Exec(ctx, sql, olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type scannable interface{ Scan(dest ...any) error }

func scanItem(row scannable) (domain.QueueItem, error) {
	var it domain.QueueItem
	err := row.Scan(
		&it.ID, &it.Kind, &it.UserID, &it.ProjectID, &it.Signal, &it.Day, &it.TestTag, &it.UniqueKey,
		&it.Status, &it.Attempts, &it.LastError, &it.EnqueuedAt, &it.StartedAt, &it.NextAttemptAt,
		&it.UpdatedAt,
	)
	return it, err
}

func scanItems(rows repokit.Rows) ([]domain.QueueItem, error) {
	var out []domain.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
