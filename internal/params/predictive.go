package params

import (
	"fmt"

	"checkengine/internal/domain"
)

const (
	// ReferenceMetricKey names the metric a predictive marker applies to.
	ReferenceMetricKey = "__reference_metric__"
	// DirectionKey selects upper or lower levels.
	DirectionKey = "__direction__"
)

// Direction of predictive levels.
type Direction string

const (
	// DirectionUpper alerts on values above the prediction.
	DirectionUpper Direction = "upper"
	// DirectionLower alerts on values below the prediction.
	DirectionLower Direction = "lower"
)

// Period groups history samples by time of the reference slot.
type Period string

const (
	PeriodWeekday Period = "wday"
	PeriodDay     Period = "day"
	PeriodHour    Period = "hour"
	PeriodMinute  Period = "minute"
)

// LevelsKind selects how warn/crit are derived from the prediction.
type LevelsKind string

const (
	LevelsAbsolute LevelsKind = "absolute"
	LevelsRelative LevelsKind = "relative"
	LevelsStdev    LevelsKind = "stdev"
)

// PredictiveParameters configures one predictive-levels lookup.
// Params: grouping period, history horizon in days, levels spec and optional bound.
// Returns: prediction request.
type PredictiveParameters struct {
	Period  Period
	Horizon int
	Levels  LevelsKind
	Warn    float64
	Crit    float64
	Bound   *[2]float64
}

// ParsePredictive validates a predictive-levels marker payload.
// Params: marker payload.
// Returns: metric, direction, parameters or configuration error naming the payload.
func ParsePredictive(payload Value) (string, Direction, PredictiveParameters, error) {
	invalid := func(reason string) (string, Direction, PredictiveParameters, error) {
		return "", "", PredictiveParameters{}, &domain.ConfigurationError{
			Msg: fmt.Sprintf("invalid predictive levels (%s): %s", reason, Format(payload)),
		}
	}

	m, ok := payload.(Map)
	if !ok {
		return invalid("payload is not a mapping")
	}
	metric, ok := AsString(m[ReferenceMetricKey])
	if !ok || metric == "" {
		return invalid("missing " + ReferenceMetricKey)
	}
	rawDirection, _ := AsString(m[DirectionKey])
	direction := Direction(rawDirection)
	if direction != DirectionUpper && direction != DirectionLower {
		return invalid("missing or invalid " + DirectionKey)
	}

	var p PredictiveParameters
	period, _ := AsString(m["period"])
	p.Period = Period(period)
	switch p.Period {
	case PeriodWeekday, PeriodDay, PeriodHour, PeriodMinute:
	default:
		return invalid("period must be one of wday, day, hour, minute")
	}
	horizon, ok := AsInt(m["horizon"])
	if !ok || horizon <= 0 {
		return invalid("horizon must be a positive number of days")
	}
	p.Horizon = int(horizon)

	levels, ok := Elements(m["levels"])
	if !ok || len(levels) != 2 {
		return invalid("levels must be (kind, (warn, crit))")
	}
	kind, _ := AsString(levels[0])
	p.Levels = LevelsKind(kind)
	switch p.Levels {
	case LevelsAbsolute, LevelsRelative, LevelsStdev:
	default:
		return invalid("levels kind must be absolute, relative or stdev")
	}
	p.Warn, p.Crit, ok = AsFloatPair(levels[1])
	if !ok {
		return invalid("levels must carry (warn, crit) numbers")
	}

	if bound, present := m["bound"]; present && !IsNull(bound) {
		lower, upper, ok := AsFloatPair(bound)
		if !ok {
			return invalid("bound must be (warn, crit) numbers")
		}
		p.Bound = &[2]float64{lower, upper}
	}
	return metric, direction, p, nil
}

// MultiMetricPlugin is the check plugin whose parameter keys are metric names.
const MultiMetricPlugin domain.CheckPluginName = "predictive_metrics"

// InjectReferenceMetrics copies every top-level key into the predictive markers below it.
// Markers that already name a reference metric are left alone.
// Params: parameter map keyed by metric name.
// Returns: map copy with metric names injected.
func InjectReferenceMetrics(m Map) Map {
	out := make(Map, len(m))
	for key, item := range m {
		out[key] = injectMetric(item, key)
	}
	return out
}

func injectMetric(v Value, metric string) Value {
	switch t := v.(type) {
	case Deferred:
		if t.Kind != KindPredictiveLevels {
			return t
		}
		payload, ok := t.Payload.(Map)
		if !ok {
			return t
		}
		if _, present := payload[ReferenceMetricKey]; present {
			return t
		}
		next := make(Map, len(payload)+1)
		for key, item := range payload {
			next[key] = item
		}
		next[ReferenceMetricKey] = String(metric)
		return Deferred{Kind: t.Kind, Payload: next}
	case Tuple:
		return Tuple(injectItems(t, metric))
	case List:
		return List(injectItems(t, metric))
	case Map:
		out := make(Map, len(t))
		for key, item := range t {
			out[key] = injectMetric(item, metric)
		}
		return out
	default:
		return v
	}
}

func injectItems(items []Value, metric string) []Value {
	out := make([]Value, 0, len(items))
	for _, item := range items {
		out = append(out, injectMetric(item, metric))
	}
	return out
}
