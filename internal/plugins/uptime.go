package plugins

import (
	"fmt"
	"iter"
	"strconv"
	"time"

	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
)

// uptimeSection is the parsed uptime section.
type uptimeSection struct {
	Seconds float64
}

func parseUptime(rows [][]string) (any, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	seconds, err := strconv.ParseFloat(rows[0][0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid uptime %q: %w", rows[0][0], err)
	}
	return uptimeSection{Seconds: seconds}, nil
}

func discoverUptime(_ params.Map, sections plugin.Sections) iter.Seq2[plugin.Service, error] {
	return func(yield func(plugin.Service, error) bool) {
		if _, ok := sections["uptime"].(uptimeSection); ok {
			yield(plugin.Service{}, nil)
		}
	}
}

func checkUptime(args plugin.CheckArgs) iter.Seq2[domain.Output, error] {
	return func(yield func(domain.Output, error) bool) {
		section, ok := args.Sections["uptime"].(uptimeSection)
		if !ok {
			return
		}
		lowerLevels, err := parseLevels(args.Params["min"])
		if err != nil {
			yield(nil, err)
			return
		}
		upperLevels, err := parseLevels(args.Params["max"])
		if err != nil {
			yield(nil, err)
			return
		}

		lowState := lowerLevels.lower(section.Seconds)
		highState := upperLevels.upper(section.Seconds)
		state := domain.WorstState(lowState, highState)
		text := "Uptime: " + renderDuration(section.Seconds)
		switch {
		case lowState != domain.StateOK:
			text += lowerLevels.describe(state, renderDuration, "below")
		case highState != domain.StateOK:
			text += upperLevels.describe(state, renderDuration, "at")
		}
		metric := upperLevels.metric(domain.NewMetric("uptime", section.Seconds))
		plugin.Yield(yield, domain.NewResult(state, text), metric)
	}
}

// renderDuration renders seconds as "N days, HH:MM:SS".
func renderDuration(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)
	if days == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s, %02d:%02d:%02d", days, unit, h, m, s)
}

func uptimePlugins() []plugin.CheckPlugin {
	return []plugin.CheckPlugin{
		{
			Name:                   "uptime",
			Sections:               []domain.ParsedSectionName{"uptime"},
			ServiceName:            "Uptime",
			Check:                  checkUptime,
			Discovery:              discoverUptime,
			CheckDefaultParameters: params.Map{},
			CheckRuleset:           "uptime",
		},
		{
			Name:                   "mgmt_uptime",
			Sections:               []domain.ParsedSectionName{"uptime"},
			ServiceName:            "Management Interface: Uptime",
			Check:                  checkUptime,
			Discovery:              discoverUptime,
			CheckDefaultParameters: params.Map{},
			CheckRuleset:           "uptime",
		},
	}
}
