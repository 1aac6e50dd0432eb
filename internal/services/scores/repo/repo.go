// Package repo provides the scores repository implementation
package repo

import (
	"context"
	"time"

	"scorekeeper/internal/modkit/repokit"
	"scorekeeper/internal/services/scores/domain"
)

// Repo defines the scores repository contract.
// Raw and smart writes are append-only; the dedup guard at the service layer
// prunes superseded rows after every write
type Repo interface {
	// Raw score rows, one oracle observation per row
	InsertRaw(ctx context.Context, r domain.RawScore) (int64, error)
	RawByDay(ctx context.Context, id domain.Identity, day time.Time) ([]domain.RawScore, error)
	RawWindow(ctx context.Context, id domain.Identity, since, until time.Time) ([]domain.RawScore, error)
	RawDays(ctx context.Context, id domain.Identity, since, until time.Time) ([]time.Time, error)
	DeleteRaw(ctx context.Context, ids []int64) error

	// Smart score rows including interpolated fills
	InsertSmart(ctx context.Context, s domain.SmartScore) (int64, error)
	SmartByDay(ctx context.Context, id domain.Identity, day time.Time) ([]domain.SmartScore, error)
	SmartWindow(ctx context.Context, id domain.Identity, since, until time.Time) ([]domain.SmartScore, error)
	CountSmart(ctx context.Context, id domain.Identity, day time.Time) (int, error)
	DeleteSmart(ctx context.Context, ids []int64) error
	InsertFilled(ctx context.Context, s domain.SmartScore) error

	// Last-checked sentinel rows keyed by identity
	InsertLastChecked(ctx context.Context, id domain.Identity, at time.Time) (int64, error)
	LastCheckedIDs(ctx context.Context, id domain.Identity) ([]int64, error)
	ClearLastChecked(ctx context.Context, id domain.Identity) error

	// Derived reads
	ScoredIdentities(ctx context.Context) ([]domain.Identity, error)
	ListGaps(ctx context.Context, id domain.Identity) ([]domain.Gap, error)
	RecomputeHistoryTotal(ctx context.Context, userID, projectID int64, day time.Time, capTotal int) error
}

type (
	// PG is a Postgres scores repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres scores repository
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of Repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

// InsertRaw appends one raw score row and returns its insertion id
func (r *queries) InsertRaw(ctx context.Context, rec domain.RawScore) (int64, error) {
	const sql = `
		INSERT INTO raw_scores
			(user_id, project_id, signal, day, value, max_value,
			 description, explanation, model, tokens_used, logs, test_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING id
	`
	row := r.q.QueryRow(ctx, sql,
		rec.UserID, rec.ProjectID, rec.Signal, rec.Day, rec.Value, rec.MaxValue,
		rec.Description, rec.Explanation, rec.Model, rec.TokensUsed, rec.Logs, rec.TestTag,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// RawByDay returns every raw row for an identity and day, newest insertion first
func (r *queries) RawByDay(ctx context.Context, id domain.Identity, day time.Time) ([]domain.RawScore, error) {
	const sql = `
		SELECT id, user_id, project_id, signal, day, value, max_value,
		       description, explanation, model, tokens_used, logs, test_tag, created_at
		FROM raw_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4 AND day = $5
		ORDER BY id DESC
	`
	return r.scanRaw(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, day)
}

// RawWindow returns raw rows in [since, until], newest insertion first
func (r *queries) RawWindow(
	ctx context.Context,
	id domain.Identity,
	since, until time.Time,
) ([]domain.RawScore, error) {
	const sql = `
		SELECT id, user_id, project_id, signal, day, value, max_value,
		       description, explanation, model, tokens_used, logs, test_tag, created_at
		FROM raw_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
		  AND day >= $5 AND day <= $6
		ORDER BY day DESC, id DESC
	`
	return r.scanRaw(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, since, until)
}

// RawDays returns the distinct days in [since, until] that already have a raw row
func (r *queries) RawDays(
	ctx context.Context,
	id domain.Identity,
	since, until time.Time,
) ([]time.Time, error) {
	const sql = `
		SELECT DISTINCT day
		FROM raw_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
		  AND day >= $5 AND day <= $6
		ORDER BY day
	`
	rows, err := r.q.Query(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteRaw removes raw rows by insertion id
func (r *queries) DeleteRaw(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const sql = `DELETE FROM raw_scores WHERE id = ANY($1)`
	_, err := r.q.Exec(ctx, sql, ids)
	return err
}

func (r *queries) scanRaw(ctx context.Context, sql string, args ...any) ([]domain.RawScore, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RawScore
	for rows.Next() {
		var rec domain.RawScore
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.ProjectID, &rec.Signal, &rec.Day, &rec.Value, &rec.MaxValue,
			&rec.Description, &rec.Explanation, &rec.Model, &rec.TokensUsed, &rec.Logs, &rec.TestTag,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
