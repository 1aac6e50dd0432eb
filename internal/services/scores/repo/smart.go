package repo

import (
	"context"
	"time"

	"scorekeeper/internal/services/scores/domain"
)

// rowTagLastChecked marks sentinel rows that record when an identity was last
// swept, without asserting anything about scores. Score rows carry ""
const rowTagLastChecked = "last_checked"

// InsertSmart appends one smart score row and returns its insertion id
func (r *queries) InsertSmart(ctx context.Context, s domain.SmartScore) (int64, error) {
	const sql = `
		INSERT INTO smart_scores
			(user_id, project_id, signal, day, value, max_value, previous_days,
			 explanation, top_band_days, row_tag, filled, filler_id, test_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', FALSE, NULL, $10, NOW())
		RETURNING id
	`
	row := r.q.QueryRow(ctx, sql,
		s.UserID, s.ProjectID, s.Signal, s.Day, s.Value, s.MaxValue, s.PreviousDays,
		s.Explanation, s.TopBandDays, s.TestTag,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// SmartByDay returns every smart score row for an identity and day, newest first.
// Sentinel rows are excluded
func (r *queries) SmartByDay(ctx context.Context, id domain.Identity, day time.Time) ([]domain.SmartScore, error) {
	const sql = `
		SELECT id, user_id, project_id, signal, day, value, max_value, previous_days,
		       explanation, top_band_days, filled, COALESCE(filler_id::text, ''), test_tag, created_at
		FROM smart_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
		  AND row_tag = '' AND day = $5
		ORDER BY id DESC
	`
	return r.scanSmart(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, day)
}

// SmartWindow returns smart score rows in [since, until], newest day first
func (r *queries) SmartWindow(
	ctx context.Context,
	id domain.Identity,
	since, until time.Time,
) ([]domain.SmartScore, error) {
	const sql = `
		SELECT id, user_id, project_id, signal, day, value, max_value, previous_days,
		       explanation, top_band_days, filled, COALESCE(filler_id::text, ''), test_tag, created_at
		FROM smart_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
		  AND row_tag = '' AND day >= $5 AND day <= $6
		ORDER BY day DESC, id DESC
	`
	return r.scanSmart(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, since, until)
}

// CountSmart counts smart score rows for an identity and day
func (r *queries) CountSmart(ctx context.Context, id domain.Identity, day time.Time) (int, error) {
	const sql = `
		SELECT COUNT(*)
		FROM smart_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
		  AND row_tag = '' AND day = $5
	`
	var n int
	err := r.q.QueryRow(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, day).Scan(&n)
	return n, err
}

// DeleteSmart removes smart score rows by insertion id
func (r *queries) DeleteSmart(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const sql = `DELETE FROM smart_scores WHERE id = ANY($1)`
	_, err := r.q.Exec(ctx, sql, ids)
	return err
}

// InsertFilled writes an interpolated smart score row. The partial unique
// index on filled rows makes concurrent fills collide; callers treat a
// duplicate key error as another filler having won the race
func (r *queries) InsertFilled(ctx context.Context, s domain.SmartScore) error {
	const sql = `
		INSERT INTO smart_scores
			(user_id, project_id, signal, day, value, max_value, previous_days,
			 explanation, top_band_days, row_tag, filled, filler_id, test_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, '', TRUE, $9::uuid, $10, NOW())
	`
	_, err := r.q.Exec(ctx, sql,
		s.UserID, s.ProjectID, s.Signal, s.Day, s.Value, s.MaxValue, s.PreviousDays,
		s.Explanation, s.FillerID, s.TestTag,
	)
	return err
}

// InsertLastChecked appends a sentinel row recording a sweep of the identity
func (r *queries) InsertLastChecked(ctx context.Context, id domain.Identity, at time.Time) (int64, error) {
	const sql = `
		INSERT INTO smart_scores
			(user_id, project_id, signal, day, value, max_value, previous_days,
			 explanation, top_band_days, row_tag, filled, filler_id, test_tag, created_at)
		VALUES ($1, $2, $3, NULL, NULL, 0, 0, '', NULL, $4, FALSE, NULL, $5, $6)
		RETURNING id
	`
	row := r.q.QueryRow(ctx, sql, id.UserID, id.ProjectID, id.Signal, rowTagLastChecked, id.TestTag, at)
	var rid int64
	if err := row.Scan(&rid); err != nil {
		return 0, err
	}
	return rid, nil
}

// LastCheckedIDs returns sentinel row ids for an identity, newest first
func (r *queries) LastCheckedIDs(ctx context.Context, id domain.Identity) ([]int64, error) {
	const sql = `
		SELECT id
		FROM smart_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4 AND row_tag = $5
		ORDER BY id DESC
	`
	rows, err := r.q.Query(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, rowTagLastChecked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		out = append(out, rid)
	}
	return out, rows.Err()
}

// ScoredIdentities lists every identity holding at least one smart score row.
// The gap-fill sweep walks this set; sentinel rows are too transient to drive
// it, they clear as soon as the aggregate lands
func (r *queries) ScoredIdentities(ctx context.Context) ([]domain.Identity, error) {
	const sql = `
		SELECT DISTINCT user_id, project_id, signal, test_tag
		FROM smart_scores
		WHERE row_tag = '' AND value IS NOT NULL
		ORDER BY user_id, project_id, signal, test_tag
	`
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		var id domain.Identity
		if err := rows.Scan(&id.UserID, &id.ProjectID, &id.Signal, &id.TestTag); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClearLastChecked removes every sentinel row for an identity
func (r *queries) ClearLastChecked(ctx context.Context, id domain.Identity) error {
	const sql = `
		DELETE FROM smart_scores
		WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4 AND row_tag = $5
	`
	_, err := r.q.Exec(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag, rowTagLastChecked)
	return err
}

// ListGaps finds runs of missing days bounded by two scored days. When an
// identity has duplicate rows for a day the newest insertion wins, matching the
// dedup guard's survivor rule
func (r *queries) ListGaps(ctx context.Context, id domain.Identity) ([]domain.Gap, error) {
	const sql = `
		WITH latest AS (
			SELECT DISTINCT ON (day) day, value, max_value, previous_days
			FROM smart_scores
			WHERE user_id = $1 AND project_id = $2 AND signal = $3 AND test_tag = $4
			  AND row_tag = '' AND value IS NOT NULL
			ORDER BY day, id DESC
		),
		paired AS (
			SELECT day, value, max_value, previous_days,
			       LAG(day) OVER w  AS prev_day,
			       LAG(value) OVER w AS prev_value,
			       LAG(max_value) OVER w AS prev_max,
			       LAG(previous_days) OVER w AS prev_prev_days
			FROM latest
			WINDOW w AS (ORDER BY day)
		)
		SELECT prev_day + 1, day - 1,
		       prev_value, value, prev_max, max_value, prev_prev_days, previous_days
		FROM paired
		WHERE prev_day IS NOT NULL AND day - prev_day > 1
		ORDER BY prev_day
	`
	rows, err := r.q.Query(ctx, sql, id.UserID, id.ProjectID, id.Signal, id.TestTag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Gap
	for rows.Next() {
		var g domain.Gap
		if err := rows.Scan(
			&g.Start, &g.End,
			&g.ValueBefore, &g.ValueAfter,
			&g.MaxValueBefore, &g.MaxValueAfter,
			&g.PreviousDaysBefore, &g.PreviousDaysAfter,
		); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecomputeHistoryTotal rebuilds the per-day total for a user and project by
// summing the newest smart value of each signal, capped at capTotal
func (r *queries) RecomputeHistoryTotal(
	ctx context.Context,
	userID, projectID int64,
	day time.Time,
	capTotal int,
) error {
	const sql = `
		INSERT INTO score_history_days (user_id, project_id, day, total, updated_at)
		SELECT $1, $2, $3, LEAST($4, COALESCE(SUM(v), 0))::int, NOW()
		FROM (
			SELECT DISTINCT ON (signal) value AS v
			FROM smart_scores
			WHERE user_id = $1 AND project_id = $2 AND day = $3
			  AND row_tag = '' AND test_tag = '' AND value IS NOT NULL
			ORDER BY signal, id DESC
		) latest
		ON CONFLICT (user_id, project_id, day) DO UPDATE
		SET total = EXCLUDED.total, updated_at = NOW()
	`
	_, err := r.q.Exec(ctx, sql, userID, projectID, day, capTotal)
	return err
}

func (r *queries) scanSmart(ctx context.Context, sql string, args ...any) ([]domain.SmartScore, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SmartScore
	for rows.Next() {
		var s domain.SmartScore
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.ProjectID, &s.Signal, &s.Day, &s.Value, &s.MaxValue, &s.PreviousDays,
			&s.Explanation, &s.TopBandDays, &s.Filled, &s.FillerID, &s.TestTag, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
