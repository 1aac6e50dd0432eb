// Package domain holds the scoring queue types and engine ports
package domain

import (
	"fmt"
	"time"
)

// Kind discriminates the two job types the queue carries
type Kind string

// Queue job kinds
const (
	KindRaw   Kind = "raw_score"
	KindSmart Kind = "smart_score"
)

// Status is the queue item lifecycle state
type Status string

// Queue item states. Pending and running are live; completed and error are
// terminal except that completed rows are pruned, not consulted
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// QueueItem is one unit of scoring work for an identity and day
type QueueItem struct {
	ID            int64
	Kind          Kind
	UserID        int64
	ProjectID     int64
	Signal        string
	Day           time.Time
	TestTag       string
	UniqueKey     string
	Status        Status
	Attempts      int
	LastError     string
	EnqueuedAt    time.Time
	StartedAt     *time.Time
	NextAttemptAt time.Time
	UpdatedAt     time.Time
}

// Identity addresses the engagement stream a queue item scores
type Identity struct {
	UserID    int64
	ProjectID int64
	Signal    string
	TestTag   string
}

// Ident returns the identity tuple of the item
func (q QueueItem) Ident() Identity {
	return Identity{UserID: q.UserID, ProjectID: q.ProjectID, Signal: q.Signal, TestTag: q.TestTag}
}

// BuildUniqueKey derives the natural key that makes enqueueing idempotent.
// Two requests for the same kind, identity and day always collide
func BuildUniqueKey(kind Kind, id Identity, day time.Time) string {
	return fmt.Sprintf("%s:%d:%d:%s:%s:%s",
		kind, id.UserID, id.ProjectID, id.Signal, day.UTC().Format("2006-01-02"), id.TestTag)
}
