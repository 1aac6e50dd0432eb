// Package service repairs holes in smart score history by linear interpolation
package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"scorekeeper/internal/modkit"
	perr "scorekeeper/internal/platform/errors"
	tim "scorekeeper/internal/platform/time"
	scores "scorekeeper/internal/services/scores/domain"
	scoresvc "scorekeeper/internal/services/scores/service"
)

// ErrGapTouchesYesterday halts gap filling entirely. A gap ending on the most
// recent expected day looks like an active outage, and papering over it with
// interpolated rows would hide that from operators
var ErrGapTouchesYesterday = perr.New(perr.ErrorCodeConflict, "gap ends yesterday, refusing to mask a live outage")

// Store is what gap filling needs from the scores service
type Store interface {
	Gaps(ctx context.Context, id scores.Identity) ([]scores.Gap, error)
	WriteFilled(ctx context.Context, rec scores.SmartScore) error
	ScoredIdentities(ctx context.Context) ([]scores.Identity, error)
}

// Svc implements the gap filler
type Svc struct {
	Store Store
	deps  modkit.Deps
}

// New constructs a gap filler backed by the scores service
func New(deps modkit.Deps) *Svc {
	if deps.PG == nil {
		panic("gapfill.Service requires a non nil TxRunner")
	}
	return &Svc{Store: scoresvc.New(deps), deps: deps}
}

// FillAll sweeps every scored identity and repairs its gaps. A live-outage
// gap anywhere halts the whole sweep; the error is for operators, not for
// papering over
func (s *Svc) FillAll(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.Store.ScoredIdentities(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := s.Fill(ctx, id, now)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Fill repairs every gap for one identity. All gaps are vetted before any row
// is written; a single live-outage gap means nothing gets filled. Each run
// gets its own filler id so interpolated rows stay distinguishable from
// computed ones
func (s *Svc) Fill(ctx context.Context, id scores.Identity, now time.Time) (int, error) {
	gaps, err := s.Store.Gaps(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(gaps) == 0 {
		return 0, nil
	}

	yesterday := tim.Yesterday(now)
	for _, g := range gaps {
		if tim.DayUTC(g.End).Equal(yesterday) {
			return 0, ErrGapTouchesYesterday
		}
	}

	fillerID := uuid.NewString()
	filled := 0
	for _, g := range gaps {
		n, err := s.fillGap(ctx, id, g, fillerID)
		filled += n
		if err != nil {
			return filled, err
		}
	}
	if filled > 0 {
		s.deps.Log.Info().
			Int64("user_id", id.UserID).
			Int64("project_id", id.ProjectID).
			Str("signal", id.Signal).
			Int("filled", filled).
			Msg("gap fill complete")
	}
	return filled, nil
}

func (s *Svc) fillGap(ctx context.Context, id scores.Identity, g scores.Gap, fillerID string) (int, error) {
	length := g.Days()
	if length <= 0 {
		return 0, nil
	}
	filled := 0
	for i := 0; i < length; i++ {
		v := interpolate(g.ValueBefore, g.ValueAfter, length, i)
		rec := scores.SmartScore{
			UserID:       id.UserID,
			ProjectID:    id.ProjectID,
			Signal:       id.Signal,
			Day:          tim.DayUTC(g.Start).AddDate(0, 0, i),
			Value:        &v,
			MaxValue:     interpolate(g.MaxValueBefore, g.MaxValueAfter, length, i),
			PreviousDays: interpolate(g.PreviousDaysBefore, g.PreviousDaysAfter, length, i),
			Explanation:  "interpolated to repair missing history",
			Filled:       true,
			FillerID:     fillerID,
			TestTag:      id.TestTag,
		}
		if err := s.Store.WriteFilled(ctx, rec); err != nil {
			return filled, err
		}
		filled++
	}
	return filled, nil
}

// interpolate steps linearly from before toward after across a gap of the
// given length, using a ceil'd per-day delta so each filled value is at most
// one step from linear truth
func interpolate(before, after, length, i int) int {
	delta := after - before
	perDay := int(math.Ceil(float64(delta) / float64(length+1)))
	return before + perDay*(i+1)
}
