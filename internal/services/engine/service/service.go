// Package service contains the scoring engine workflows: queue fan-out,
// worker processing, aggregation, and the governor sweep
package service

import (
	"time"

	"scorekeeper/internal/core/smartscore"
	"scorekeeper/internal/modkit"
	"scorekeeper/internal/services/engine/domain"
	"scorekeeper/internal/services/engine/repo"
)

// Config carries runtime knobs for the engine
type Config struct {
	// MaxAttempts is the retry budget before a queue item is parked in error
	MaxAttempts int

	// TimeoutSeconds is how long a running item may go without completing
	// before the governor reclaims it
	TimeoutSeconds int

	// MaxConcurrentInFlight bounds concurrent oracle calls
	MaxConcurrentInFlight int

	RetryBaseMs   int
	DispatchBatch int

	// PruneAfter is the retention window for completed queue rows
	PruneAfter time.Duration
}

func withDefaults(cfg Config) Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	if cfg.MaxConcurrentInFlight <= 0 {
		cfg.MaxConcurrentInFlight = 8
	}
	if cfg.RetryBaseMs <= 0 {
		cfg.RetryBaseMs = 500
	}
	if cfg.DispatchBatch <= 0 {
		cfg.DispatchBatch = 64
	}
	if cfg.PruneAfter <= 0 {
		cfg.PruneAfter = 7 * 24 * time.Hour
	}
	return cfg
}

// Ports bundles the engine's collaborators
type Ports struct {
	Scores   domain.ScoreStore
	Oracle   domain.Oracle
	Source   domain.Source
	Dispatch domain.Dispatcher
}

// Svc implements the scoring engine
type Svc struct {
	Repo    repo.Repo
	ports   Ports
	signals *SignalRegistry
	deps    modkit.Deps
	config  Config
}

// New constructs a scoring engine bound to Postgres
func New(deps modkit.Deps, cfg Config, signals *SignalRegistry, ports Ports) *Svc {
	if deps.PG == nil {
		panic("engine.Service requires a non nil TxRunner")
	}
	if ports.Scores == nil || ports.Oracle == nil || ports.Source == nil || ports.Dispatch == nil {
		panic("engine.Service requires all ports wired")
	}
	if signals == nil {
		signals = MustSignalRegistry(DefaultSignalConfigs(), nil)
	}
	return &Svc{
		Repo:    repo.NewPG().Bind(deps.PG),
		ports:   ports,
		signals: signals,
		deps:    deps,
		config:  withDefaults(cfg),
	}
}

func (s *Svc) timeout() time.Duration {
	return time.Duration(s.config.TimeoutSeconds) * time.Second
}

// DefaultTuning exposes the built-in aggregation profiles for callers that
// only need the algorithm constants
func DefaultTuning() map[string]smartscore.Tuning { return smartscore.Profiles() }
