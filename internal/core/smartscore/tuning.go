package smartscore

import (
	perr "scorekeeper/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

// Tuning carries the per-signal-type aggregation constants
type Tuning struct {
	// TopThresholdLowerBound is how far below the best normalized day a day
	// may be and still join the top band
	TopThresholdLowerBound float64 `validate:"gte=0,lte=1"`

	// TopBandMaxLength caps how many top days are averaged
	TopBandMaxLength int `validate:"gt=0"`

	// Frequency multipliers and the band-size thresholds that select them
	FreqLow        float64 `validate:"gt=0"`
	FreqMid        float64 `validate:"gt=0"`
	FreqHigh       float64 `validate:"gt=0"`
	LowerFreqCount int     `validate:"gt=0"`
	UpperFreqCount int     `validate:"gtfield=LowerFreqCount"`

	// TimeDecayFraction is the fraction of the lookback window, at its oldest
	// end, over which weight decays to zero
	TimeDecayFraction float64 `validate:"gte=0,lt=1"`
}

// Profiles returns the built-in tuning profiles keyed by signal type name
func Profiles() map[string]Tuning {
	return map[string]Tuning{
		"forum": {
			TopThresholdLowerBound: 0.3,
			TopBandMaxLength:       7,
			FreqLow:                0.8,
			FreqMid:                1.0,
			FreqHigh:               1.2,
			LowerFreqCount:         2,
			UpperFreqCount:         5,
			TimeDecayFraction:      0.3,
		},
		"chat": {
			TopThresholdLowerBound: 0.25,
			TopBandMaxLength:       10,
			FreqLow:                0.75,
			FreqMid:                1.0,
			FreqHigh:               1.25,
			LowerFreqCount:         3,
			UpperFreqCount:         7,
			TimeDecayFraction:      0.25,
		},
	}
}

// ValidateProfiles checks every profile at startup so an unknown or invalid
// signal type fails fast instead of mid-computation
func ValidateProfiles(profiles map[string]Tuning) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	for name, tn := range profiles {
		if err := v.Struct(tn); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeValidation, "smartscore: invalid tuning profile %q", name)
		}
	}
	return nil
}

// For resolves the tuning profile for a signal type name
func For(signal string, profiles map[string]Tuning) (Tuning, error) {
	tn, ok := profiles[signal]
	if !ok {
		return Tuning{}, perr.Newf(perr.ErrorCodeInvalidArgument, "smartscore: unknown signal type %q", signal)
	}
	return tn, nil
}
