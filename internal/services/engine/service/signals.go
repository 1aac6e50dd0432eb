package service

import (
	"github.com/go-playground/validator/v10"

	"scorekeeper/internal/core/smartscore"
	perr "scorekeeper/internal/platform/errors"
)

// SignalConfig is the per signal type scoring configuration: the score scale,
// the lookback window, and the aggregation tuning constants
type SignalConfig struct {
	MaxValue     int `validate:"gt=0"`
	PreviousDays int `validate:"gt=0"`
	Tuning       smartscore.Tuning
}

// SignalRegistry resolves signal configuration, with optional per-project
// overrides shadowing the defaults
type SignalRegistry struct {
	defaults  map[string]SignalConfig
	overrides map[int64]map[string]SignalConfig
}

// DefaultSignalConfigs returns the built-in signal configurations
func DefaultSignalConfigs() map[string]SignalConfig {
	profiles := smartscore.Profiles()
	return map[string]SignalConfig{
		"forum": {MaxValue: 10, PreviousDays: 10, Tuning: profiles["forum"]},
		"chat":  {MaxValue: 10, PreviousDays: 14, Tuning: profiles["chat"]},
	}
}

// NewSignalRegistry validates and builds a registry
func NewSignalRegistry(
	defaults map[string]SignalConfig,
	overrides map[int64]map[string]SignalConfig,
) (*SignalRegistry, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	check := func(name string, sc SignalConfig) error {
		if err := v.Struct(sc); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeValidation, "invalid signal config %q", name)
		}
		if err := v.Struct(sc.Tuning); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeValidation, "invalid tuning for signal %q", name)
		}
		return nil
	}
	for name, sc := range defaults {
		if err := check(name, sc); err != nil {
			return nil, err
		}
	}
	for project, m := range overrides {
		for name, sc := range m {
			if err := check(name, sc); err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "project %d", project)
			}
		}
	}
	return &SignalRegistry{defaults: defaults, overrides: overrides}, nil
}

// MustSignalRegistry builds a registry or panics; intended for wiring paths
// where a bad config should stop the process
func MustSignalRegistry(
	defaults map[string]SignalConfig,
	overrides map[int64]map[string]SignalConfig,
) *SignalRegistry {
	r, err := NewSignalRegistry(defaults, overrides)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the signal config for a project, falling back to defaults
func (r *SignalRegistry) Resolve(projectID int64, signal string) (SignalConfig, error) {
	if m, ok := r.overrides[projectID]; ok {
		if sc, ok := m[signal]; ok {
			return sc, nil
		}
	}
	if sc, ok := r.defaults[signal]; ok {
		return sc, nil
	}
	return SignalConfig{}, perr.Newf(perr.ErrorCodeInvalidArgument, "unknown signal type %q", signal)
}
