package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"scorekeeper/internal/core/smartscore"
	perr "scorekeeper/internal/platform/errors"
	"scorekeeper/internal/platform/logger"
	"scorekeeper/internal/platform/store"
	tim "scorekeeper/internal/platform/time"
	"scorekeeper/internal/services/engine/domain"
	scores "scorekeeper/internal/services/scores/domain"
)

// Run starts the worker loop: lease due pending items and process them until
// the context is cancelled
func (s *Svc) Run(ctx context.Context) error {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			for _, kind := range []domain.Kind{domain.KindRaw, domain.KindSmart} {
				items, err := s.lease(ctx, kind)
				if err != nil {
					return err
				}
				for _, it := range items {
					s.process(ctx, it)
				}
			}
		}
	}
}

func (s *Svc) lease(ctx context.Context, kind domain.Kind) ([]domain.QueueItem, error) {
	n := s.config.DispatchBatch
	if kind == domain.KindRaw {
		running, err := s.Repo.CountRunning(ctx, domain.KindRaw)
		if err != nil {
			return nil, err
		}
		n = s.config.MaxConcurrentInFlight - running
		if n <= 0 {
			return nil, nil
		}
	}
	return s.Repo.Lease(ctx, kind, n)
}

// ProcessItem claims and processes one queue item by id. Used by the dispatch
// path; an item already claimed or not yet due is silently skipped
func (s *Svc) ProcessItem(ctx context.Context, itemID int64) error {
	item, ok, err := s.Repo.Claim(ctx, itemID)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "claim queue item")
	}
	if !ok {
		return nil
	}
	s.process(ctx, item)
	return nil
}

// process runs a claimed item to a terminal or retry state. Errors are folded
// into the queue row rather than returned; the dispatch path has no caller to
// report to
func (s *Svc) process(ctx context.Context, item domain.QueueItem) {
	ctx = logger.WithJob(ctx, strconv.FormatInt(item.ID, 10), item.Signal)
	ctx = store.WithJobID(ctx, strconv.FormatInt(item.ID, 10))
	if item.TestTag != "" {
		ctx = store.WithTestTag(ctx, item.TestTag)
	}

	var err error
	switch item.Kind {
	case domain.KindRaw:
		err = s.processRaw(ctx, item)
	case domain.KindSmart:
		err = s.processSmart(ctx, item)
	default:
		err = perr.Newf(perr.ErrorCodeInvalidArgument, "unknown queue kind %q", item.Kind)
	}
	if err != nil {
		if errors.Is(err, errBarrierClosed) {
			s.deferItem(ctx, item, err)
			return
		}
		s.fail(ctx, item, err)
		return
	}
	if err := s.Repo.MarkCompleted(ctx, item.ID); err != nil {
		s.deps.Log.Error().Err(err).Int64("item_id", item.ID).Msg("mark completed failed")
	}
}

// processRaw fetches one day of activity, asks the oracle for a judgment, and
// records the raw score through the dedup guard
func (s *Svc) processRaw(ctx context.Context, item domain.QueueItem) error {
	sc, err := s.signals.Resolve(item.ProjectID, item.Signal)
	if err != nil {
		return err
	}
	activity, err := s.ports.Source.Fetch(ctx, item.Ident(), item.Day)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "fetch activity")
	}

	res, err := s.ports.Oracle.Score(ctx, domain.OracleRequest{
		Signal:   item.Signal,
		Day:      item.Day,
		MaxValue: sc.MaxValue,
		Activity: activity,
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "oracle score")
	}

	// the oracle can overshoot; clamp rather than reject
	value := res.Value
	if value < 0 {
		value = 0
	}
	if value > float64(sc.MaxValue) {
		value = float64(sc.MaxValue)
	}

	_, err = s.ports.Scores.WriteRaw(ctx, scores.RawScore{
		UserID:      item.UserID,
		ProjectID:   item.ProjectID,
		Signal:      item.Signal,
		Day:         item.Day,
		Value:       value,
		MaxValue:    sc.MaxValue,
		Description: activity.Description,
		Explanation: res.Explanation,
		Model:       res.Model,
		TokensUsed:  res.TokensUsed,
		Logs:        res.Logs,
		TestTag:     item.TestTag,
	})
	return err
}

// errBarrierClosed means raw fan-out for the identity has not drained yet.
// Waiting on it is not a failure; the item defers without spending an attempt
var errBarrierClosed = errors.New("raw fan-out still draining")

// processSmart aggregates the raw window into a smart score. The fan-in
// barrier holds while any raw job for the identity is still live; the item
// goes back to pending and is retried once the fan-out drains
func (s *Svc) processSmart(ctx context.Context, item domain.QueueItem) error {
	outstanding, err := s.Repo.OutstandingRaw(ctx, item.Ident())
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "count outstanding raw jobs")
	}
	if outstanding > 0 {
		return fmt.Errorf("%d raw jobs outstanding: %w", outstanding, errBarrierClosed)
	}

	sc, err := s.signals.Resolve(item.ProjectID, item.Signal)
	if err != nil {
		return err
	}
	day := tim.DayUTC(item.Day)
	since := day.AddDate(0, 0, -sc.PreviousDays)

	raws, err := s.ports.Scores.LatestRawWindow(ctx, storeIdent(item.Ident()), since, day)
	if err != nil {
		return err
	}
	obs := make([]smartscore.Observation, 0, len(raws))
	for _, r := range raws {
		obs = append(obs, smartscore.Observation{
			Day: r.Day, Value: r.Value, MaxValue: float64(r.MaxValue),
		})
	}

	res := smartscore.Compute(obs, day, sc.PreviousDays, sc.MaxValue, sc.Tuning)

	rec := scores.SmartScore{
		UserID:       item.UserID,
		ProjectID:    item.ProjectID,
		Signal:       item.Signal,
		Day:          day,
		MaxValue:     sc.MaxValue,
		PreviousDays: sc.PreviousDays,
		TopBandDays:  res.TopBandDays,
		TestTag:      item.TestTag,
	}
	if res.Score > 0 {
		v := res.Score
		rec.Value = &v
		// the score itself is deterministic; the oracle only narrates the
		// collapsed window so the row carries the same provenance raw rows do
		ores, err := s.ports.Oracle.Score(ctx, domain.OracleRequest{
			Signal:   item.Signal,
			Day:      day,
			MaxValue: sc.MaxValue,
			Activity: windowActivity(raws),
		})
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeUnavailable, "oracle narrate aggregate")
		}
		rec.Explanation = ores.Explanation
	} else {
		rec.Explanation = "no qualifying observations in window"
	}
	if _, err := s.ports.Scores.WriteSmart(ctx, rec); err != nil {
		return err
	}
	// the aggregate landed; drop the liveness sentinel so observers stop
	// seeing the identity as in flight
	if err := s.ports.Scores.ClearChecked(ctx, storeIdent(item.Ident())); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "clear sentinel")
	}
	return nil
}

// windowActivity restates a collapsed raw window as one activity batch for
// the oracle to narrate
func windowActivity(raws []scores.RawScore) domain.Activity {
	entries := make([]domain.ActivityEntry, 0, len(raws))
	for _, r := range raws {
		entries = append(entries, domain.ActivityEntry{
			At:   r.Day,
			Text: fmt.Sprintf("scored %.0f of %d: %s", r.Value, r.MaxValue, r.Explanation),
		})
	}
	return domain.Activity{
		Description: fmt.Sprintf("aggregate window of %d scored days", len(raws)),
		Entries:     entries,
	}
}

// deferItem parks a smart item behind the fan-in barrier without charging
// its attempt budget. The wait can recur any number of times; only real
// processing failures count against maxAttempts
func (s *Svc) deferItem(ctx context.Context, item domain.QueueItem, cause error) {
	back := backoffFor(0, s.config.RetryBaseMs)
	if err := s.Repo.Defer(ctx, item.ID, trimErr(cause), back); err != nil {
		s.deps.Log.Error().Err(err).Int64("item_id", item.ID).Msg("defer failed")
		return
	}
	s.deps.Log.Debug().
		Int64("item_id", item.ID).
		Dur("backoff", back).
		Msg("smart job waiting on raw fan out")
}

// fail routes a processing error to retry or terminal error. Exhausting the
// attempt budget parks the item and clears the liveness sentinel so observers
// see the identity as unchecked
func (s *Svc) fail(ctx context.Context, item domain.QueueItem, cause error) {
	msg := trimErr(cause)
	if item.Attempts >= s.config.MaxAttempts {
		if err := s.Repo.MarkError(ctx, item.ID, msg); err != nil {
			s.deps.Log.Error().Err(err).Int64("item_id", item.ID).Msg("mark error failed")
			return
		}
		if err := s.ports.Scores.ClearChecked(ctx, storeIdent(item.Ident())); err != nil {
			s.deps.Log.Error().Err(err).Int64("item_id", item.ID).Msg("clear sentinel failed")
		}
		s.deps.Log.Warn().
			Int64("item_id", item.ID).
			Str("kind", string(item.Kind)).
			Int("attempts", item.Attempts).
			Str("cause", msg).
			Msg("queue item exhausted retries")
		return
	}

	back := backoffFor(item.Attempts, s.config.RetryBaseMs)
	if err := s.Repo.MarkPendingRetry(ctx, item.ID, msg, back); err != nil {
		s.deps.Log.Error().Err(err).Int64("item_id", item.ID).Msg("mark retry failed")
		return
	}
	s.deps.Log.Warn().
		Int64("item_id", item.ID).
		Str("kind", string(item.Kind)).
		Dur("backoff", back).
		Str("cause", msg).
		Msg("queue item failed scheduled retry")
}

func trimErr(err error) string {
	const n = 500
	s := err.Error()
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func backoffFor(attempts int, baseMs int) time.Duration {
	if baseMs <= 0 {
		baseMs = 500
	}
	if attempts < 0 {
		attempts = 0
	}
	ms := min(int64(baseMs)<<uint(attempts), int64(10*time.Minute/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
