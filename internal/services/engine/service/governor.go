package service

import (
	"context"
	"time"

	perr "scorekeeper/internal/platform/errors"
	"scorekeeper/internal/services/engine/domain"
)

// SweepReport summarizes one governor pass
type SweepReport struct {
	Reclaimed    int
	Exhausted    int
	Redispatched int
	Pruned       int64
}

// Sweep reclaims stale running items, parks anything past the attempt budget,
// re-dispatches due pending work, and prunes old completed rows. Safe to run
// from multiple governors at once; every step is idempotent
func (s *Svc) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport

	stale, err := s.Repo.ListStaleRunning(ctx, s.timeout())
	if err != nil {
		return rep, perr.Wrap(err, perr.ErrorCodeDB, "list stale running items")
	}
	for _, it := range stale {
		if it.Attempts >= s.config.MaxAttempts {
			if err := s.Repo.MarkError(ctx, it.ID, "timed out after max attempts"); err != nil {
				return rep, perr.Wrap(err, perr.ErrorCodeDB, "park exhausted item")
			}
			if err := s.ports.Scores.ClearChecked(ctx, storeIdent(it.Ident())); err != nil {
				s.deps.Log.Error().Err(err).Int64("item_id", it.ID).Msg("clear sentinel failed")
			}
			rep.Exhausted++
			continue
		}
		back := backoffFor(it.Attempts, s.config.RetryBaseMs)
		if err := s.Repo.MarkPendingRetry(ctx, it.ID, "reclaimed by governor", back); err != nil {
			return rep, perr.Wrap(err, perr.ErrorCodeDB, "reclaim stale item")
		}
		rep.Reclaimed++
	}

	due, err := s.Repo.ListDuePending(ctx, s.config.DispatchBatch)
	if err != nil {
		return rep, perr.Wrap(err, perr.ErrorCodeDB, "list due pending items")
	}
	running, err := s.Repo.CountRunning(ctx, domain.KindRaw)
	if err != nil {
		return rep, perr.Wrap(err, perr.ErrorCodeDB, "count running raw jobs")
	}
	slots := s.config.MaxConcurrentInFlight - running
	for _, it := range due {
		if it.Kind == domain.KindRaw {
			if slots <= 0 {
				continue
			}
			slots--
		}
		s.ports.Dispatch.Dispatch(ctx, it.ID)
		rep.Redispatched++
	}

	pruned, err := s.Repo.PruneCompleted(ctx, s.config.PruneAfter)
	if err != nil {
		return rep, perr.Wrap(err, perr.ErrorCodeDB, "prune completed items")
	}
	rep.Pruned = pruned

	if rep.Reclaimed+rep.Exhausted+rep.Redispatched > 0 || rep.Pruned > 0 {
		s.deps.Log.Info().
			Int("reclaimed", rep.Reclaimed).
			Int("exhausted", rep.Exhausted).
			Int("redispatched", rep.Redispatched).
			Int64("pruned", rep.Pruned).
			Msg("governor sweep")
	}
	return rep, nil
}

// RunGovernor sweeps on a fixed cadence until the context is cancelled
func (s *Svc) RunGovernor(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 30 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.deps.Log.Error().Err(err).Msg("governor sweep failed")
			}
		}
	}
}
