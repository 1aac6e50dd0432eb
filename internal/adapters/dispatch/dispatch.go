// Package dispatch delivers fire-and-forget processing nudges for queue items.
// A dispatch only confirms that work started, never that it finished; the
// governor re-dispatches anything that falls through
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"scorekeeper/internal/platform/logger"
)

// Processor is the worker-side handler a Local dispatcher invokes
type Processor interface {
	ProcessItem(ctx context.Context, itemID int64) error
}

// Local runs queue items on an in-process goroutine. Suited to the worker
// binary where dispatcher and processor share a process
type Local struct {
	proc Processor
	log  logger.Logger

	// done is signalled per completed dispatch; tests only
	done chan struct{}
}

// NewLocal constructs an in-process dispatcher. p may be nil when the
// processor is itself constructed with this dispatcher; call Bind before
// the first Dispatch
func NewLocal(p Processor) *Local {
	return &Local{proc: p, log: *logger.Named("dispatch")}
}

// Bind sets the processor after construction, breaking the cycle between a
// worker service and the dispatcher it is built with
func (l *Local) Bind(p Processor) { l.proc = p }

// Dispatch starts processing and returns immediately. The item's own row in
// the queue carries the outcome; failures here are only logged
func (l *Local) Dispatch(ctx context.Context, itemID int64) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := l.proc.ProcessItem(bg, itemID); err != nil {
			l.log.Warn().Err(err).Int64("item_id", itemID).Msg("local dispatch failed")
		}
		if l.done != nil {
			l.done <- struct{}{}
		}
	}()
}

// HTTP posts queue item ids to a remote worker's jobs endpoint
type HTTP struct {
	http *http.Client
	base string
	log  logger.Logger
}

// NewHTTP constructs a dispatcher that POSTs to baseURL + "/jobs"
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{
		http: &http.Client{Timeout: timeout},
		base: baseURL,
		log:  *logger.Named("dispatch"),
	}
}

type jobRequest struct {
	ItemID int64 `json:"item_id"`
}

// Dispatch sends the nudge in the background and ignores delivery failures
func (h *HTTP) Dispatch(ctx context.Context, itemID int64) {
	bg := context.WithoutCancel(ctx)
	go h.post(bg, itemID)
}

func (h *HTTP) post(ctx context.Context, itemID int64) {
	body, err := json.Marshal(jobRequest{ItemID: itemID})
	if err != nil {
		h.log.Error().Err(err).Int64("item_id", itemID).Msg("encode dispatch body")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+"/jobs", bytes.NewReader(body))
	if err != nil {
		h.log.Error().Err(err).Int64("item_id", itemID).Msg("build dispatch request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		h.log.Warn().Err(err).Int64("item_id", itemID).Msg("dispatch delivery failed")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		h.log.Warn().Int("status", resp.StatusCode).Int64("item_id", itemID).Msg("dispatch not accepted")
	}
}
