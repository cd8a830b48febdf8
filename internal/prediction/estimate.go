package prediction

import (
	"math"

	"checkengine/internal/params"
)

// Stats summarizes history values of one slot set.
type Stats struct {
	Average float64 `json:"average"`
	Stdev   float64 `json:"stdev"`
	Count   int     `json:"count"`
}

// Summarize computes average and standard deviation.
// Params: values.
// Returns: stats, false for empty input.
func Summarize(values []float64) (Stats, bool) {
	if len(values) == 0 {
		return Stats{}, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return Stats{
		Average: avg,
		Stdev:   math.Sqrt(sq / float64(len(values))),
		Count:   len(values),
	}, true
}

// EstimateLevels derives warn/crit around the reference value.
// Params: stats of the reference slots, direction and predictive parameters.
// Returns: (warn, crit) levels.
func EstimateLevels(stats Stats, direction params.Direction, p params.PredictiveParameters) [2]float64 {
	ref := stats.Average
	offset := func(v float64) float64 {
		switch p.Levels {
		case params.LevelsRelative:
			return math.Abs(ref) * v / 100
		case params.LevelsStdev:
			return stats.Stdev * v
		default:
			return v
		}
	}

	sign := 1.0
	if direction == params.DirectionLower {
		sign = -1.0
	}
	levels := [2]float64{ref + sign*offset(p.Warn), ref + sign*offset(p.Crit)}

	if p.Bound != nil {
		for i := range levels {
			if direction == params.DirectionLower {
				levels[i] = math.Min(levels[i], p.Bound[i])
			} else {
				levels[i] = math.Max(levels[i], p.Bound[i])
			}
		}
	}
	return levels
}
