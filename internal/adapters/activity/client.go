// Package activity fetches daily activity records from community platform APIs
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	perr "scorekeeper/internal/platform/errors"
	"scorekeeper/internal/platform/logger"
	tim "scorekeeper/internal/platform/time"
	"scorekeeper/internal/services/engine/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUA        = "scorekeeper-engine"
	defaultMaxRetry  = 4
	defaultRetryBase = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration
}

// Client is a minimal activity feed client implementing the engine Source port.
// The remote API serves opaque daily activity records per user, project and
// signal type
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("activity"),
		sleep: time.Sleep,
	}
}

type daysPayload struct {
	Days []string `json:"days"`
}

type activityPayload struct {
	Description string `json:"description"`
	Entries     []struct {
		At   time.Time `json:"at"`
		Text string    `json:"text"`
	} `json:"entries"`
}

// ActiveDays lists the days in [since, until] on which the user had any activity
func (c *Client) ActiveDays(
	ctx context.Context,
	id domain.Identity,
	since, until time.Time,
) ([]time.Time, error) {
	q := url.Values{}
	q.Set("since", since.Format("2006-01-02"))
	q.Set("until", until.Format("2006-01-02"))

	var payload daysPayload
	if err := c.get(ctx, c.path(id, "days"), q, &payload); err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(payload.Days))
	for _, s := range payload.Days {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "bad day %q in activity feed", s)
		}
		out = append(out, tim.DayUTC(d))
	}
	return out, nil
}

// Fetch returns the full activity for one day
func (c *Client) Fetch(ctx context.Context, id domain.Identity, day time.Time) (domain.Activity, error) {
	q := url.Values{}
	q.Set("day", day.Format("2006-01-02"))

	var payload activityPayload
	if err := c.get(ctx, c.path(id, "activity"), q, &payload); err != nil {
		return domain.Activity{}, err
	}
	act := domain.Activity{Description: payload.Description}
	for _, e := range payload.Entries {
		act.Entries = append(act.Entries, domain.ActivityEntry{At: e.At, Text: e.Text})
	}
	return act, nil
}

func (c *Client) path(id domain.Identity, leaf string) string {
	return fmt.Sprintf("%s/v1/users/%d/projects/%d/signals/%s/%s",
		c.opts.BaseURL, id.UserID, id.ProjectID, url.PathEscape(id.Signal), leaf)
}

// get performs a GET with retries on transient and rate limited responses
func (c *Client) get(ctx context.Context, rawURL string, q url.Values, out any) error {
	var last error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.opts.RetryBase << uint(attempt-1))
		}
		err := c.getOnce(ctx, rawURL, q, out)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil || !perr.IsCode(err, perr.ErrorCodeUnavailable) {
			return err
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Str("url", rawURL).Msg("activity fetch failed")
	}
	return perr.Wrap(last, perr.ErrorCodeUnavailable, "activity feed exhausted retries")
}

func (c *Client) getOnce(ctx context.Context, rawURL string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+q.Encode(), nil)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "build activity request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "activity request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return perr.Newf(perr.ErrorCodeUnavailable, "activity feed returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return perr.New(perr.ErrorCodeNotFound, "activity not found")
	default:
		io.Copy(io.Discard, resp.Body)
		return perr.Newf(perr.ErrorCodeUnknown, "activity feed returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "decode activity response")
	}
	return nil
}
