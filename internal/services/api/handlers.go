package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	perr "scorekeeper/internal/platform/errors"
	phttp "scorekeeper/internal/platform/net/http"
	"scorekeeper/internal/platform/net/http/bind"
	tim "scorekeeper/internal/platform/time"
	enginedom "scorekeeper/internal/services/engine/domain"
	scores "scorekeeper/internal/services/scores/domain"
)

type handlers struct {
	trigger Trigger
	reader  Reader
}

// scoreRequest asks for an identity to be (re)scored
type scoreRequest struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	ProjectID int64  `json:"project_id" validate:"required,gt=0"`
	Signal    string `json:"signal" validate:"required"`
	TestTag   string `json:"test_tag"`

	// Day overrides "today" for reprocessing; defaults to the current day
	Day string `json:"day" validate:"omitempty,datetime=2006-01-02"`
}

type scoreResponse struct {
	RawQueued     int  `json:"raw_queued"`
	RawDispatched int  `json:"raw_dispatched"`
	SmartQueued   bool `json:"smart_queued"`
	AlreadyScored bool `json:"already_scored"`
}

// score accepts a scoring trigger. Work is queued, not awaited, so the reply
// is a 202 describing what was admitted
func (h *handlers) score(w http.ResponseWriter, r *http.Request) {
	req, err := bind.ParseJSON[scoreRequest](r)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	today := time.Now().UTC()
	if req.Day != "" {
		d, err := time.Parse("2006-01-02", req.Day)
		if err != nil {
			phttp.RespondError(w, r, perr.Wrap(err, perr.ErrorCodeValidation, "parse day"))
			return
		}
		today = d
	}

	out, err := h.trigger.Score(r.Context(), enginedom.Identity{
		UserID: req.UserID, ProjectID: req.ProjectID, Signal: req.Signal, TestTag: req.TestTag,
	}, today)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	phttp.JSON(w, http.StatusAccepted, phttp.Envelope{
		StatusCode: http.StatusAccepted,
		Status:     http.StatusText(http.StatusAccepted),
		Data: scoreResponse{
			RawQueued:     out.RawQueued,
			RawDispatched: out.RawDispatched,
			SmartQueued:   out.SmartQueued,
			AlreadyScored: out.AlreadyScored,
		},
	})
}

type smartView struct {
	Day         string   `json:"day"`
	Value       *int     `json:"value"`
	MaxValue    int      `json:"max_value"`
	Filled      bool     `json:"filled"`
	TopBandDays []string `json:"top_band_days,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

func (h *handlers) smartWindow(r *http.Request) (any, error) {
	id, since, until, err := readQuery(r)
	if err != nil {
		return nil, err
	}
	rows, err := h.reader.LatestSmartWindow(r.Context(), id, since, until)
	if err != nil {
		return nil, err
	}
	out := make([]smartView, 0, len(rows))
	for _, s := range rows {
		v := smartView{
			Day:         s.Day.Format("2006-01-02"),
			Value:       s.Value,
			MaxValue:    s.MaxValue,
			Filled:      s.Filled,
			Explanation: s.Explanation,
		}
		for _, d := range s.TopBandDays {
			v.TopBandDays = append(v.TopBandDays, d.Format("2006-01-02"))
		}
		out = append(out, v)
	}
	return out, nil
}

type rawView struct {
	Day         string  `json:"day"`
	Value       float64 `json:"value"`
	MaxValue    int     `json:"max_value"`
	Model       string  `json:"model,omitempty"`
	Explanation string  `json:"explanation,omitempty"`
}

func (h *handlers) rawWindow(r *http.Request) (any, error) {
	id, since, until, err := readQuery(r)
	if err != nil {
		return nil, err
	}
	rows, err := h.reader.LatestRawWindow(r.Context(), id, since, until)
	if err != nil {
		return nil, err
	}
	out := make([]rawView, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rawView{
			Day:         rec.Day.Format("2006-01-02"),
			Value:       rec.Value,
			MaxValue:    rec.MaxValue,
			Model:       rec.Model,
			Explanation: rec.Explanation,
		})
	}
	return out, nil
}

type gapView struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

func (h *handlers) gaps(r *http.Request) (any, error) {
	id, _, _, err := readQuery(r)
	if err != nil {
		return nil, err
	}
	rows, err := h.reader.Gaps(r.Context(), id)
	if err != nil {
		return nil, err
	}
	out := make([]gapView, 0, len(rows))
	for _, g := range rows {
		out = append(out, gapView{
			Start: g.Start.Format("2006-01-02"),
			End:   g.End.Format("2006-01-02"),
			Days:  g.Days(),
		})
	}
	return out, nil
}

// readQuery resolves the identity from the path and the optional
// since/until window from the query, defaulting to the last 30 days
func readQuery(r *http.Request) (scores.Identity, time.Time, time.Time, error) {
	var id scores.Identity

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		return id, time.Time{}, time.Time{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad user id")
	}
	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		return id, time.Time{}, time.Time{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad project id")
	}
	id = scores.Identity{
		UserID:    userID,
		ProjectID: projectID,
		Signal:    chi.URLParam(r, "signal"),
		TestTag:   r.URL.Query().Get("test_tag"),
	}

	until := tim.DayUTC(time.Now().UTC())
	since := until.AddDate(0, 0, -30)
	if s := r.URL.Query().Get("until"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return id, time.Time{}, time.Time{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad until day")
		}
		until = tim.DayUTC(d)
		since = until.AddDate(0, 0, -30)
	}
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return id, time.Time{}, time.Time{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad since day")
		}
		since = tim.DayUTC(d)
	}
	return id, since, until, nil
}
