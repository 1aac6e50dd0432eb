// Package service contains score record workflows including the dedup guard
package service

import (
	"context"
	"time"

	"scorekeeper/internal/modkit"
	"scorekeeper/internal/modkit/repokit"
	perr "scorekeeper/internal/platform/errors"
	"scorekeeper/internal/platform/store"
	tim "scorekeeper/internal/platform/time"
	"scorekeeper/internal/services/scores/domain"
	"scorekeeper/internal/services/scores/repo"
)

// historyTotalCap bounds the per-day total written to score_history_days
const historyTotalCap = 100

// Svc implements score record storage with write-then-prune deduplication.
// Writers never take locks; every write appends and then deletes any rows it
// superseded, so concurrent writers converge on the newest insertion
type Svc struct {
	Repo repo.Repo
	pg   repokit.TxRunner
}

// New constructs a scores service bound to Postgres
func New(deps modkit.Deps) *Svc {
	if deps.PG == nil {
		panic("scores.Service requires a non nil TxRunner")
	}
	pg := repokit.WithBeginHooks(deps.PG, tagSession)
	return &Svc{Repo: repo.NewPG().Bind(pg), pg: pg}
}

// tagSession stamps the testing-session qualifier on the transaction so that
// traces and audits can attribute rows written under a tag
func tagSession(ctx context.Context, q repokit.Queryer) error {
	tag, ok := store.TestTag(ctx)
	if !ok {
		return nil
	}
	_, err := q.Exec(ctx, `SELECT set_config('scorekeeper.test_tag', $1, true)`, tag)
	return err
}

// tx runs fn against a repo bound to one transaction, so an append and its
// prune land atomically. Constructed without a TxRunner, fn runs on the bare
// repo instead
func (s *Svc) tx(ctx context.Context, fn func(r repo.Repo) error) error {
	if s.pg == nil {
		return fn(s.Repo)
	}
	return repokit.WithTx(ctx, s.pg, func(q repokit.Queryer) error {
		return fn(repo.NewPG().Bind(q))
	})
}

// WriteRaw records a raw score and prunes superseded rows for the same
// identity and day. Returns the surviving row, which is the caller's own row
// unless a later writer already replaced it
func (s *Svc) WriteRaw(ctx context.Context, rec domain.RawScore) (domain.RawScore, error) {
	out := rec
	err := s.tx(ctx, func(r repo.Repo) error {
		id, err := r.InsertRaw(ctx, rec)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "insert raw score")
		}
		out.ID = id

		rows, err := r.RawByDay(ctx, rec.Ident(), rec.Day)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "list raw scores for prune")
		}
		if err := pruneRaw(ctx, r, rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			out = rows[0]
		}
		return nil
	})
	if err != nil {
		return domain.RawScore{}, err
	}
	return out, nil
}

// WriteSmart records a smart score, prunes superseded rows, and rebuilds the
// day's history total. Test-tagged rows never touch history
func (s *Svc) WriteSmart(ctx context.Context, rec domain.SmartScore) (domain.SmartScore, error) {
	out := rec
	err := s.tx(ctx, func(r repo.Repo) error {
		id, err := r.InsertSmart(ctx, rec)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "insert smart score")
		}
		out.ID = id

		rows, err := r.SmartByDay(ctx, rec.Ident(), rec.Day)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "list smart scores for prune")
		}
		if err := pruneSmart(ctx, r, rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			out = rows[0]
		}
		if rec.TestTag == "" {
			if err := r.RecomputeHistoryTotal(ctx, rec.UserID, rec.ProjectID, rec.Day, historyTotalCap); err != nil {
				return perr.Wrap(err, perr.ErrorCodeDB, "recompute history total")
			}
		}
		return nil
	})
	if err != nil {
		return domain.SmartScore{}, err
	}
	return out, nil
}

// WriteFilled records an interpolated smart score. A duplicate key error means
// another filler already wrote this day and is not reported as a failure
func (s *Svc) WriteFilled(ctx context.Context, rec domain.SmartScore) error {
	if err := s.Repo.InsertFilled(ctx, rec); err != nil {
		if perr.IsDuplicateKey(err) {
			return nil
		}
		return perr.Wrap(err, perr.ErrorCodeDB, "insert filled smart score")
	}
	if rec.TestTag == "" {
		if err := s.Repo.RecomputeHistoryTotal(ctx, rec.UserID, rec.ProjectID, rec.Day, historyTotalCap); err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "recompute history total")
		}
	}
	return nil
}

// MarkChecked records that the identity was swept at the given time and prunes
// older sentinel rows so at most one survives
func (s *Svc) MarkChecked(ctx context.Context, id domain.Identity, at time.Time) error {
	return s.tx(ctx, func(r repo.Repo) error {
		if _, err := r.InsertLastChecked(ctx, id, at); err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "insert last checked sentinel")
		}
		ids, err := r.LastCheckedIDs(ctx, id)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "list last checked sentinels")
		}
		if len(ids) > 1 {
			if err := r.DeleteSmart(ctx, ids[1:]); err != nil {
				return perr.Wrap(err, perr.ErrorCodeDB, "prune last checked sentinels")
			}
		}
		return nil
	})
}

// ClearChecked removes the identity's sentinel, forcing the next sweep to
// treat it as never checked
func (s *Svc) ClearChecked(ctx context.Context, id domain.Identity) error {
	if err := s.Repo.ClearLastChecked(ctx, id); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "clear last checked sentinel")
	}
	return nil
}

// MissingDays returns the days in [since, until] with no raw score row yet
func (s *Svc) MissingDays(ctx context.Context, id domain.Identity, since, until time.Time) ([]time.Time, error) {
	have, err := s.Repo.RawDays(ctx, id, since, until)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "list scored days")
	}
	seen := make(map[time.Time]bool, len(have))
	for _, d := range have {
		seen[tim.DayUTC(d)] = true
	}

	var out []time.Time
	for d := tim.DayUTC(since); !d.After(tim.DayUTC(until)); d = d.AddDate(0, 0, 1) {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// LatestRawWindow returns at most one raw row per day in [since, until],
// keeping the newest insertion for each day
func (s *Svc) LatestRawWindow(
	ctx context.Context,
	id domain.Identity,
	since, until time.Time,
) ([]domain.RawScore, error) {
	rows, err := s.Repo.RawWindow(ctx, id, since, until)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "list raw score window")
	}
	seen := make(map[time.Time]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		day := tim.DayUTC(r.Day)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, r)
	}
	return out, nil
}

// LatestSmartWindow returns at most one smart row per day in [since, until],
// keeping the newest insertion for each day
func (s *Svc) LatestSmartWindow(
	ctx context.Context,
	id domain.Identity,
	since, until time.Time,
) ([]domain.SmartScore, error) {
	rows, err := s.Repo.SmartWindow(ctx, id, since, until)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "list smart score window")
	}
	seen := make(map[time.Time]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		day := tim.DayUTC(r.Day)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, r)
	}
	return out, nil
}

// SmartCount counts smart score rows for the identity and day. Exactly one
// row means the day is settled; more than one means a race the dedup guard
// has not collapsed yet
func (s *Svc) SmartCount(ctx context.Context, id domain.Identity, day time.Time) (int, error) {
	n, err := s.Repo.CountSmart(ctx, id, day)
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeDB, "count smart scores")
	}
	return n, nil
}

// ScoredIdentities lists every identity with at least one smart score row
func (s *Svc) ScoredIdentities(ctx context.Context) ([]domain.Identity, error) {
	ids, err := s.Repo.ScoredIdentities(ctx)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "list scored identities")
	}
	return ids, nil
}

// Gaps lists runs of missing smart score days bounded by known rows
func (s *Svc) Gaps(ctx context.Context, id domain.Identity) ([]domain.Gap, error) {
	gaps, err := s.Repo.ListGaps(ctx, id)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "list smart score gaps")
	}
	return gaps, nil
}

func pruneRaw(ctx context.Context, r repo.Repo, rows []domain.RawScore) error {
	if len(rows) <= 1 {
		return nil
	}
	ids := make([]int64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ids = append(ids, row.ID)
	}
	if err := r.DeleteRaw(ctx, ids); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "prune superseded raw scores")
	}
	return nil
}

func pruneSmart(ctx context.Context, r repo.Repo, rows []domain.SmartScore) error {
	if len(rows) <= 1 {
		return nil
	}
	ids := make([]int64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ids = append(ids, row.ID)
	}
	if err := r.DeleteSmart(ctx, ids); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "prune superseded smart scores")
	}
	return nil
}
