package cluster

import (
	"fmt"
	"math"
	"strings"

	"checkengine/internal/domain"
)

// Mode selects how node results are combined.
type Mode string

const (
	ModeNative   Mode = "native"
	ModeFailover Mode = "failover"
	ModeWorst    Mode = "worst"
	ModeBest     Mode = "best"
)

// ParseMode converts configured mode; empty means native.
// Params: raw mode value.
// Returns: mode or error for unknown values.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeNative:
		return ModeNative, nil
	case ModeFailover:
		return ModeFailover, nil
	case ModeWorst:
		return ModeWorst, nil
	case ModeBest:
		return ModeBest, nil
	default:
		return "", fmt.Errorf("unsupported cluster mode %q", value)
	}
}

// Config carries per-service cluster settings.
// Params: node roles and optional additional-nodes levels.
// Returns: clustered service settings.
type Config struct {
	Mode          Mode
	PrimaryNode   domain.HostName
	PreferredNode domain.HostName
	MetricsNode   domain.HostName
	// LevelsAdditionalNodes overrides (warn, crit) on the number of secondary nodes with results.
	LevelsAdditionalNodes *[2]float64
}

// strategy is the mode-specific part of aggregation.
type strategy struct {
	label            string
	selector         func(states ...domain.State) domain.State
	preferred        domain.HostName
	pinPreferred     bool
	unpreferredState domain.State
	levels           [2]float64
}

// strategyFor maps an aggregating mode to its strategy.
func strategyFor(cfg Config) strategy {
	switch cfg.Mode {
	case ModeFailover:
		s := strategy{
			label:            "Failover",
			selector:         domain.WorstState,
			preferred:        cfg.PrimaryNode,
			pinPreferred:     true,
			unpreferredState: domain.StateWarn,
			levels:           [2]float64{1, math.Inf(1)},
		}
		return withLevels(s, cfg)
	case ModeBest:
		return withLevels(strategy{
			label:            "Best",
			selector:         domain.BestState,
			preferred:        cfg.PreferredNode,
			unpreferredState: domain.StateOK,
			levels:           [2]float64{math.Inf(1), math.Inf(1)},
		}, cfg)
	default:
		return withLevels(strategy{
			label:            "Worst",
			selector:         domain.WorstState,
			preferred:        cfg.PreferredNode,
			unpreferredState: domain.StateOK,
			levels:           [2]float64{math.Inf(1), math.Inf(1)},
		}, cfg)
	}
}

func withLevels(s strategy, cfg Config) strategy {
	if cfg.LevelsAdditionalNodes != nil {
		s.levels = *cfg.LevelsAdditionalNodes
	}
	return s
}
