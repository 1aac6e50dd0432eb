// Package oracle scores one day of user activity with a chat completion model
package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	perr "scorekeeper/internal/platform/errors"
	"scorekeeper/internal/platform/logger"
	"scorekeeper/internal/services/engine/domain"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultTimeout   = 30 * time.Second
	defaultMaxRetry  = 3
	defaultRetryBase = time.Second
)

// Options configures the Client
type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	Temperature float32
	Timeout     time.Duration

	// Retry config for transient API failures
	MaxRetries int
	RetryBase  time.Duration
}

// chatCompleter is the slice of the OpenAI client the oracle uses
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client asks a chat model for a bounded engagement judgment. Responses carry
// a first line of the form "SCORE: <n>"; everything after is the explanation
type Client struct {
	api   chatCompleter
	opts  Options
	audit *Audit
	log   logger.Logger
	sleep func(time.Duration)
}

// New creates a Client with sane defaults. audit may be nil
func New(o Options, audit *Audit) *Client {
	if o.Model == "" {
		o.Model = defaultModel
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

	cfg := openai.DefaultConfig(o.APIKey)
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		opts:  o,
		audit: audit,
		log:   *logger.Named("oracle"),
		sleep: time.Sleep,
	}
}

// Score implements the engine's Oracle port
func (c *Client) Score(ctx context.Context, req domain.OracleRequest) (domain.OracleResult, error) {
	start := time.Now()

	chat := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	}

	resp, err := c.complete(ctx, chat)
	if err != nil {
		return domain.OracleResult{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.OracleResult{}, perr.New(perr.ErrorCodeUnavailable, "oracle returned no choices")
	}

	content := resp.Choices[0].Message.Content
	value, explanation, err := parseJudgment(content)
	if err != nil {
		return domain.OracleResult{}, err
	}

	res := domain.OracleResult{
		Value:       value,
		MaxValue:    req.MaxValue,
		Explanation: explanation,
		Model:       resp.Model,
		TokensUsed:  resp.Usage.TotalTokens,
		Logs:        content,
	}
	c.writeAudit(ctx, req, res, time.Since(start))
	return res, nil
}

func (c *Client) complete(
	ctx context.Context,
	chat openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	var last error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.opts.RetryBase << uint(attempt-1))
		}
		cctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		resp, err := c.api.CreateChatCompletion(cctx, chat)
		cancel()
		if err == nil {
			return resp, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("oracle call failed")
	}
	return openai.ChatCompletionResponse{}, perr.Wrap(last, perr.ErrorCodeUnavailable, "oracle exhausted retries")
}

func (c *Client) writeAudit(ctx context.Context, req domain.OracleRequest, res domain.OracleResult, took time.Duration) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, req, res, took); err != nil {
		c.log.Warn().Err(err).Msg("oracle audit write failed")
	}
}

func systemPrompt(req domain.OracleRequest) string {
	return fmt.Sprintf(
		"You judge one day of a community member's %s activity. "+
			"Reply with a first line of exactly \"SCORE: <integer 0-%d>\" "+
			"followed by a short plain-text explanation.",
		req.Signal, req.MaxValue)
}

func userPrompt(req domain.OracleRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day: %s\n", req.Day.Format("2006-01-02"))
	if req.Activity.Description != "" {
		fmt.Fprintf(&b, "Summary: %s\n", req.Activity.Description)
	}
	b.WriteString("Activity:\n")
	for _, e := range req.Activity.Entries {
		fmt.Fprintf(&b, "- [%s] %s\n", e.At.Format("15:04"), e.Text)
	}
	if len(req.Activity.Entries) == 0 {
		b.WriteString("- none recorded\n")
	}
	return b.String()
}

// parseJudgment splits a "SCORE: n" first line from the explanation body
func parseJudgment(content string) (float64, string, error) {
	head, tail, _ := strings.Cut(strings.TrimSpace(content), "\n")
	head = strings.TrimSpace(head)
	upper := strings.ToUpper(head)
	if !strings.HasPrefix(upper, "SCORE:") {
		return 0, "", perr.Newf(perr.ErrorCodeValidation, "oracle reply missing score line: %q", head)
	}
	num := strings.TrimSpace(head[len("SCORE:"):])
	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", perr.Wrapf(err, perr.ErrorCodeValidation, "oracle score not numeric: %q", num)
	}
	return value, strings.TrimSpace(tail), nil
}
