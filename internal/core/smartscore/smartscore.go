// Package smartscore rolls a window of per-day raw scores into one bounded
// aggregate score using time decay and top-band averaging
package smartscore

import (
	"math"
	"sort"
	"time"

	ptime "scorekeeper/internal/platform/time"
)

// Observation is one day's unweighted raw score
type Observation struct {
	Day      time.Time
	Value    float64
	MaxValue float64
}

// Result carries the aggregate score and the days that contributed
type Result struct {
	Score       int
	TopBandDays []time.Time
}

// weighted is an observation after normalization and time decay
type weighted struct {
	day   time.Time
	value float64
}

// Compute produces an aggregate score in [1, maxValue], or 0 when no
// observation qualifies for the top band.
//
// Days outside [today-previousDays, today] are discarded. Each surviving day
// is normalized against its own max, decayed toward zero across the oldest
// timeDecayFraction of the window, and rounded to two decimals. The top band
// is every day within topThresholdLowerBound of the best day, capped at
// topBandMaxLength after a descending sort. The band average is scaled by
// maxValue and a frequency multiplier picked from the band size.
func Compute(obs []Observation, today time.Time, previousDays, maxValue int, tn Tuning) Result {
	if previousDays <= 0 || maxValue <= 0 {
		return Result{}
	}

	decayStart := int(math.Floor(float64(previousDays) * (1 - tn.TimeDecayFraction)))

	ws := make([]weighted, 0, len(obs))
	for _, o := range obs {
		age := ptime.DaysBetween(o.Day, today)
		if age < 0 || age > previousDays {
			continue
		}
		if o.MaxValue <= 0 {
			continue
		}
		v := o.Value / o.MaxValue
		if age > decayStart && previousDays > decayStart {
			progress := float64(age-decayStart) / float64(previousDays-decayStart)
			v *= clamp01(1 - progress)
		}
		ws = append(ws, weighted{day: ptime.DayUTC(o.Day), value: round2(v)})
	}
	if len(ws) == 0 {
		return Result{}
	}

	top := ws[0].value
	for _, w := range ws[1:] {
		if w.value > top {
			top = w.value
		}
	}
	threshold := round2(math.Max(0, top-tn.TopThresholdLowerBound))

	band := ws[:0:0]
	for _, w := range ws {
		if w.value >= threshold {
			band = append(band, w)
		}
	}
	if len(band) == 0 {
		return Result{}
	}

	if len(band) > tn.TopBandMaxLength {
		sort.SliceStable(band, func(i, j int) bool { return band[i].value > band[j].value })
		band = band[:tn.TopBandMaxLength]
	}

	var sum float64
	days := make([]time.Time, 0, len(band))
	for _, w := range band {
		sum += w.value
		days = append(days, w.day)
	}
	avg := round2(sum / float64(len(band)))

	// three reachable tiers by band size
	mult := tn.FreqLow
	switch {
	case len(band) >= tn.UpperFreqCount:
		mult = tn.FreqHigh
	case len(band) >= tn.LowerFreqCount:
		mult = tn.FreqMid
	}

	score := int(math.Round(avg * float64(maxValue) * mult))
	if score < 1 {
		score = 1
	}
	if score > maxValue {
		score = maxValue
	}
	return Result{Score: score, TopBandDays: days}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
