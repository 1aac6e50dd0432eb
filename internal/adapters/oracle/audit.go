package oracle

import (
	"context"
	"time"

	"scorekeeper/internal/platform/store"
	"scorekeeper/internal/services/engine/domain"
)

// auditTable holds one row per oracle call for offline inspection of model
// behavior and spend
const auditTable = "oracle_audit"

// Audit writes oracle call records to ClickHouse. Best effort only: callers
// log and continue when a write fails
type Audit struct {
	db store.Clickhouse
}

// NewAudit constructs an audit sink. db may be nil, which disables recording
func NewAudit(db store.Clickhouse) *Audit { return &Audit{db: db} }

// Record appends one oracle call row
func (a *Audit) Record(
	ctx context.Context,
	req domain.OracleRequest,
	res domain.OracleResult,
	took time.Duration,
) error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Insert(ctx, auditTable, [][]any{{
		req.Day.Format("2006-01-02"),
		req.Signal,
		req.MaxValue,
		res.Value,
		res.Model,
		res.TokensUsed,
		took.Milliseconds(),
		time.Now().UTC(),
	}})
}
