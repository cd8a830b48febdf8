package domain

import (
	"fmt"
	"strings"
)

// State is the monitoring state of one check result.
// Params: numeric codes OK=0, WARN=1, CRIT=2, UNKNOWN=3.
// Returns: state value shared by results and aggregations.
type State int

const (
	// StateOK marks a healthy result.
	StateOK State = 0
	// StateWarn marks a warning result.
	StateWarn State = 1
	// StateCrit marks a critical result.
	StateCrit State = 2
	// StateUnknown marks a result that could not be determined.
	StateUnknown State = 3
)

var stateMarkers = [...]string{"", "(!)", "(!!)", "(?)"}

// severity orders states for worst/best selection: CRIT dominates UNKNOWN.
var severity = [...]int{0, 1, 3, 2}

// String returns upper-case state name.
// Params: none.
// Returns: OK, WARN, CRIT, UNKNOWN or numeric fallback.
func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateWarn:
		return "WARN"
	case StateCrit:
		return "CRIT"
	case StateUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Marker returns text marker appended to multi-result output lines.
// Params: none.
// Returns: "", "(!)", "(!!)" or "(?)".
func (s State) Marker() string {
	if !s.Valid() {
		return ""
	}
	return stateMarkers[s]
}

// Valid reports whether state is one of the four known codes.
// Params: none.
// Returns: true for OK/WARN/CRIT/UNKNOWN.
func (s State) Valid() bool {
	return s >= StateOK && s <= StateUnknown
}

// ParseState converts state name or digit into State.
// Params: raw value such as "warn", "CRIT" or "2".
// Returns: parsed state or error.
func ParseState(value string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "OK", "0":
		return StateOK, nil
	case "WARN", "WARNING", "1":
		return StateWarn, nil
	case "CRIT", "CRITICAL", "2":
		return StateCrit, nil
	case "UNKNOWN", "UNKN", "3":
		return StateUnknown, nil
	default:
		return StateOK, fmt.Errorf("unsupported state %q", value)
	}
}

// WorstState returns the most severe state; CRIT > UNKNOWN > WARN > OK.
// Params: states to compare.
// Returns: worst state or OK for empty input.
func WorstState(states ...State) State {
	worst := StateOK
	for _, s := range states {
		if severity[s] > severity[worst] {
			worst = s
		}
	}
	return worst
}

// BestState returns the least severe state; OK < WARN < UNKNOWN < CRIT.
// Params: states to compare.
// Returns: best state or OK for empty input.
func BestState(states ...State) State {
	if len(states) == 0 {
		return StateOK
	}
	best := states[0]
	for _, s := range states[1:] {
		if severity[s] < severity[best] {
			best = s
		}
	}
	return best
}

// StripMarkers removes all state markers from text.
// Params: text produced by earlier aggregation.
// Returns: text without "(!)", "(!!)" and "(?)".
func StripMarkers(text string) string {
	return markerReplacer.Replace(text)
}

var markerReplacer = strings.NewReplacer("(!!)", "", "(!)", "", "(?)", "")
