package domain

import (
	"context"
	"time"

	scores "scorekeeper/internal/services/scores/domain"
)

// ScoreStore is what the engine needs from the scores service: deduplicated
// writes plus the reads that drive fan-out and aggregation
type ScoreStore interface {
	WriteRaw(ctx context.Context, rec scores.RawScore) (scores.RawScore, error)
	WriteSmart(ctx context.Context, rec scores.SmartScore) (scores.SmartScore, error)
	MissingDays(ctx context.Context, id scores.Identity, since, until time.Time) ([]time.Time, error)
	LatestRawWindow(ctx context.Context, id scores.Identity, since, until time.Time) ([]scores.RawScore, error)
	SmartCount(ctx context.Context, id scores.Identity, day time.Time) (int, error)
	MarkChecked(ctx context.Context, id scores.Identity, at time.Time) error
	ClearChecked(ctx context.Context, id scores.Identity) error
}

// Activity is one day of user activity handed to the oracle for scoring
type Activity struct {
	Description string
	Entries     []ActivityEntry
}

// ActivityEntry is a single timestamped event within a day
type ActivityEntry struct {
	At   time.Time
	Text string
}

// Source exposes the external activity feed: which days had any activity,
// and the full activity for one day
type Source interface {
	ActiveDays(ctx context.Context, id Identity, since, until time.Time) ([]time.Time, error)
	Fetch(ctx context.Context, id Identity, day time.Time) (Activity, error)
}

// OracleRequest asks for an engagement judgment on one day's activity
type OracleRequest struct {
	Signal   string
	Day      time.Time
	MaxValue int
	Activity Activity
}

// OracleResult is the oracle's judgment plus its provenance
type OracleResult struct {
	Value       float64
	MaxValue    int
	Explanation string
	Model       string
	TokensUsed  int
	Logs        string
}

// Oracle produces a raw engagement score for one identity-day
type Oracle interface {
	Score(ctx context.Context, req OracleRequest) (OracleResult, error)
}

// Dispatcher nudges a worker to process a queue item. Dispatch is fire and
// forget: delivery failures are ignored because the governor re-dispatches
// anything left behind
type Dispatcher interface {
	Dispatch(ctx context.Context, itemID int64)
}
