package service

import (
	"context"
	"time"

	perr "scorekeeper/internal/platform/errors"
	tim "scorekeeper/internal/platform/time"
	"scorekeeper/internal/services/engine/domain"
	scores "scorekeeper/internal/services/scores/domain"
)

// ScoreOutcome reports what a scoring trigger actually did
type ScoreOutcome struct {
	RawQueued     int
	RawDispatched int
	SmartQueued   bool
	AlreadyScored bool
}

// Score is the scoring trigger for one identity. It fans out raw score jobs
// for missing active days, enqueues the aggregate job for today, and records
// the liveness sentinel. All work happens asynchronously; the returned outcome
// only says what was queued
func (s *Svc) Score(ctx context.Context, id domain.Identity, today time.Time) (ScoreOutcome, error) {
	today = tim.DayUTC(today)
	sid := storeIdent(id)

	var out ScoreOutcome
	queued, dispatched, err := s.EnsureRawScores(ctx, id, today)
	if err != nil {
		return out, err
	}
	out.RawQueued = queued
	out.RawDispatched = dispatched

	// exactly one row means today is settled; more than one is an unresolved
	// race, so recompute and let the dedup guard collapse it
	n, err := s.ports.Scores.SmartCount(ctx, sid, today)
	if err != nil {
		return out, err
	}
	if n == 1 && queued == 0 {
		out.AlreadyScored = true
	} else {
		smartID, fresh, err := s.Repo.Enqueue(ctx, domain.QueueItem{
			Kind: domain.KindSmart, UserID: id.UserID, ProjectID: id.ProjectID,
			Signal: id.Signal, TestTag: id.TestTag, Day: today,
		})
		if err != nil {
			return out, perr.Wrap(err, perr.ErrorCodeDB, "enqueue smart score job")
		}
		if fresh {
			out.SmartQueued = true
			s.ports.Dispatch.Dispatch(ctx, smartID)
		}
	}

	if err := s.ports.Scores.MarkChecked(ctx, sid, time.Now().UTC()); err != nil {
		return out, err
	}
	return out, nil
}

// EnsureRawScores enqueues raw score jobs for every active day in the lookback
// window that has no raw score yet. Enqueueing is unconditional and idempotent;
// dispatch is capped at maxConcurrentInFlight minus the currently running
// count, and anything past the cap waits for the governor. Returns how many
// jobs were newly queued and how many of those were dispatched
func (s *Svc) EnsureRawScores(ctx context.Context, id domain.Identity, today time.Time) (int, int, error) {
	sc, err := s.signals.Resolve(id.ProjectID, id.Signal)
	if err != nil {
		return 0, 0, err
	}
	today = tim.DayUTC(today)
	since := today.AddDate(0, 0, -sc.PreviousDays)
	until := today.AddDate(0, 0, -1)

	active, err := s.ports.Source.ActiveDays(ctx, id, since, until)
	if err != nil {
		return 0, 0, perr.Wrap(err, perr.ErrorCodeUnavailable, "list active days")
	}
	if len(active) == 0 {
		return 0, 0, nil
	}

	missing, err := s.ports.Scores.MissingDays(ctx, storeIdent(id), since, until)
	if err != nil {
		return 0, 0, err
	}
	missingSet := make(map[time.Time]bool, len(missing))
	for _, d := range missing {
		missingSet[tim.DayUTC(d)] = true
	}

	var fresh []int64
	for _, d := range active {
		d = tim.DayUTC(d)
		if !missingSet[d] {
			continue
		}
		itemID, inserted, err := s.Repo.Enqueue(ctx, domain.QueueItem{
			Kind: domain.KindRaw, UserID: id.UserID, ProjectID: id.ProjectID,
			Signal: id.Signal, TestTag: id.TestTag, Day: d,
		})
		if err != nil {
			return len(fresh), 0, perr.Wrap(err, perr.ErrorCodeDB, "enqueue raw score job")
		}
		if inserted {
			fresh = append(fresh, itemID)
		}
	}
	if len(fresh) == 0 {
		return 0, 0, nil
	}

	running, err := s.Repo.CountRunning(ctx, domain.KindRaw)
	if err != nil {
		return len(fresh), 0, perr.Wrap(err, perr.ErrorCodeDB, "count running raw jobs")
	}
	slots := s.config.MaxConcurrentInFlight - running
	if slots < 0 {
		slots = 0
	}
	dispatched := 0
	for _, itemID := range fresh {
		if dispatched >= slots {
			break
		}
		s.ports.Dispatch.Dispatch(ctx, itemID)
		dispatched++
	}

	s.deps.Log.Debug().
		Int64("user_id", id.UserID).
		Int64("project_id", id.ProjectID).
		Str("signal", id.Signal).
		Int("queued", len(fresh)).
		Int("dispatched", dispatched).
		Msg("raw score fan out")
	return len(fresh), dispatched, nil
}

func storeIdent(id domain.Identity) scores.Identity {
	return scores.Identity{UserID: id.UserID, ProjectID: id.ProjectID, Signal: id.Signal, TestTag: id.TestTag}
}
