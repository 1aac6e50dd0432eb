// Package domain holds score record types shared by the scores repo and services
package domain

import "time"

// Identity addresses one user's engagement stream for a signal type.
// TestTag is the optional testing-session qualifier; production rows carry ""
type Identity struct {
	UserID    int64
	ProjectID int64
	Signal    string
	TestTag   string
}

// RawScore is one day's unweighted observation produced by the scoring oracle.
// Rows are append-only; superseded rows are deleted, never edited
type RawScore struct {
	ID          int64
	UserID      int64
	ProjectID   int64
	Signal      string
	Day         time.Time
	Value       float64
	MaxValue    int
	Description string
	Explanation string
	Model       string
	TokensUsed  int
	Logs        string
	TestTag     string
	CreatedAt   time.Time
}

// Ident returns the identity tuple of the record
func (r RawScore) Ident() Identity {
	return Identity{UserID: r.UserID, ProjectID: r.ProjectID, Signal: r.Signal, TestTag: r.TestTag}
}

// SmartScore is the decay-weighted aggregate for one day.
// Value is nil when the aggregation produced no qualifying observations
type SmartScore struct {
	ID           int64
	UserID       int64
	ProjectID    int64
	Signal       string
	Day          time.Time
	Value        *int
	MaxValue     int
	PreviousDays int
	Explanation  string
	TopBandDays  []time.Time
	Filled       bool
	FillerID     string
	TestTag      string
	CreatedAt    time.Time
}

// Ident returns the identity tuple of the record
func (s SmartScore) Ident() Identity {
	return Identity{UserID: s.UserID, ProjectID: s.ProjectID, Signal: s.Signal, TestTag: s.TestTag}
}

// Gap is a derived, read-only view of a contiguous run of missing smart score
// days bounded by two known rows. Start and End are inclusive
type Gap struct {
	Start              time.Time
	End                time.Time
	ValueBefore        int
	ValueAfter         int
	MaxValueBefore     int
	MaxValueAfter      int
	PreviousDaysBefore int
	PreviousDaysAfter  int
}

// Days returns the number of missing days in the gap
func (g Gap) Days() int {
	return int(g.End.Sub(g.Start)/(24*time.Hour)) + 1
}
