package domain

import (
	"fmt"
	"strings"
)

// Output is one item yielded by a check function.
// Params: implemented only by Result, Metric and IgnoreResults.
// Returns: closed set of check outputs.
type Output interface {
	isOutput()
}

// Result is a state with human readable text.
// Params: state, one-line summary and multi-line details.
// Returns: check result item.
type Result struct {
	State   State
	Summary string
	Details string
}

// NewResult builds a result shown in the service summary.
// Params: state and summary text (details default to summary).
// Returns: result value.
func NewResult(state State, summary string) Result {
	return Result{State: state, Summary: summary, Details: summary}
}

// Notice builds a result shown only in the details unless state is not OK.
// Params: state and notice text.
// Returns: result value.
func Notice(state State, text string) Result {
	summary := ""
	if state != StateOK {
		summary = firstLine(text)
	}
	return Result{State: state, Summary: summary, Details: text}
}

// Validate checks result invariants.
// Params: none.
// Returns: error for unknown state or multi-line summary.
func (r Result) Validate() error {
	if !r.State.Valid() {
		return fmt.Errorf("invalid state %d", int(r.State))
	}
	if strings.Contains(r.Summary, "\n") {
		return fmt.Errorf("summary must not contain newlines: %q", r.Summary)
	}
	return nil
}

func (Result) isOutput() {}

// Metric is one performance data point.
// Params: name, value and optional levels/boundaries.
// Returns: metric item.
type Metric struct {
	Name  string
	Value float64
	Warn  *float64
	Crit  *float64
	Min   *float64
	Max   *float64
}

// NewMetric builds a metric without levels.
// Params: metric name and value.
// Returns: metric value.
func NewMetric(name string, value float64) Metric {
	return Metric{Name: name, Value: value}
}

// WithLevels returns copy of metric with warn/crit levels.
// Params: warn and crit levels.
// Returns: metric copy.
func (m Metric) WithLevels(warn, crit float64) Metric {
	m.Warn = &warn
	m.Crit = &crit
	return m
}

// WithBoundaries returns copy of metric with min/max boundaries.
// Params: lower and upper boundary.
// Returns: metric copy.
func (m Metric) WithBoundaries(lower, upper float64) Metric {
	m.Min = &lower
	m.Max = &upper
	return m
}

// Validate checks metric invariants.
// Params: none.
// Returns: error when name is empty or contains whitespace.
func (m Metric) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if strings.ContainsAny(m.Name, " \t\n=") {
		return fmt.Errorf("invalid metric name %q", m.Name)
	}
	return nil
}

func (Metric) isOutput() {}

// IgnoreResults tells the engine to hold the service state this round.
// Params: explanatory text.
// Returns: ignore marker item.
type IgnoreResults struct {
	Text string
}

// String returns the ignore text.
// Params: none.
// Returns: explanatory text.
func (i IgnoreResults) String() string {
	return i.Text
}

func (IgnoreResults) isOutput() {}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
