package plugins

import (
	"fmt"

	"checkengine/internal/domain"
	"checkengine/internal/params"
)

// levels are warn/crit thresholds after resolving fixed or predictive configuration.
type levels struct {
	warn, crit float64
	set        bool
	// prediction is the predicted reference value, if any.
	prediction *float64
	predictive bool
}

// parseLevels accepts (warn, crit), ("fixed", (warn, crit)),
// ("predictive", (metric, reference, levels)) and null.
func parseLevels(v params.Value) (levels, error) {
	if v == nil || params.IsNull(v) {
		return levels{}, nil
	}
	if warn, crit, ok := params.AsFloatPair(v); ok {
		return levels{warn: warn, crit: crit, set: true}, nil
	}
	items, ok := params.Elements(v)
	if !ok || len(items) != 2 {
		return levels{}, fmt.Errorf("invalid levels %s", params.Format(v))
	}
	kind, _ := params.AsString(items[0])
	switch kind {
	case "fixed":
		warn, crit, ok := params.AsFloatPair(items[1])
		if !ok {
			return levels{}, fmt.Errorf("invalid fixed levels %s", params.Format(v))
		}
		return levels{warn: warn, crit: crit, set: true}, nil
	case "no_levels":
		return levels{}, nil
	case "predictive":
		parts, ok := params.Elements(items[1])
		if !ok || len(parts) != 3 {
			return levels{}, fmt.Errorf("invalid predictive levels %s", params.Format(v))
		}
		out := levels{predictive: true}
		if ref, ok := params.AsFloat(parts[1]); ok {
			out.prediction = &ref
		}
		if warn, crit, ok := params.AsFloatPair(parts[2]); ok {
			out.warn, out.crit, out.set = warn, crit, true
		}
		return out, nil
	default:
		return levels{}, fmt.Errorf("unsupported levels kind %q", kind)
	}
}

// upper evaluates value against upper levels.
func (l levels) upper(value float64) domain.State {
	switch {
	case !l.set:
		return domain.StateOK
	case value >= l.crit:
		return domain.StateCrit
	case value >= l.warn:
		return domain.StateWarn
	default:
		return domain.StateOK
	}
}

// lower evaluates value against lower levels.
func (l levels) lower(value float64) domain.State {
	switch {
	case !l.set:
		return domain.StateOK
	case value < l.crit:
		return domain.StateCrit
	case value < l.warn:
		return domain.StateWarn
	default:
		return domain.StateOK
	}
}

// describe renders the levels hint appended to non-OK results.
func (l levels) describe(state domain.State, render func(float64) string, word string) string {
	text := ""
	if l.predictive {
		if l.prediction == nil {
			text = " (no reference for prediction yet)"
		} else {
			text = fmt.Sprintf(" (prediction: %s)", render(*l.prediction))
		}
	}
	if state != domain.StateOK {
		text += fmt.Sprintf(" (warn/crit %s %s/%s)", word, render(l.warn), render(l.crit))
	}
	return text
}

// metric attaches levels to a metric when set.
func (l levels) metric(m domain.Metric) domain.Metric {
	if !l.set {
		return m
	}
	return m.WithLevels(l.warn, l.crit)
}

// checkUpper yields result and metric for value with upper levels.
func checkUpper(label string, value float64, l levels, render func(float64) string, metric domain.Metric) []domain.Output {
	state := l.upper(value)
	text := label + ": " + render(value) + l.describe(state, render, "at")
	return []domain.Output{domain.NewResult(state, text), l.metric(metric)}
}

// checkLower yields result and metric for value with lower levels.
func checkLower(label string, value float64, l levels, render func(float64) string, metric domain.Metric) []domain.Output {
	state := l.lower(value)
	text := label + ": " + render(value) + l.describe(state, render, "below")
	return []domain.Output{domain.NewResult(state, text), l.metric(metric)}
}

func renderPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
