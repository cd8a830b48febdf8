package plugins

import (
	"fmt"
	"iter"
	"strconv"
	"time"

	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/valuestore"
)

// kernelSection holds counters of /proc/vmstat and /proc/stat at one instant.
type kernelSection struct {
	At       time.Time
	Counters map[string]float64
}

type kernelCounter struct {
	name   string
	label  string
	metric string
}

var kernelCounters = []kernelCounter{
	{name: "processes", label: "Process Creations", metric: "process_creations"},
	{name: "ctxt", label: "Context Switches", metric: "context_switches"},
	{name: "pgmajfault", label: "Major Page Faults", metric: "major_page_faults"},
}

func parseKernel(rows [][]string) (any, error) {
	if len(rows) == 0 || len(rows[0]) != 1 {
		return nil, nil
	}
	ts, err := strconv.ParseInt(rows[0][0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid kernel timestamp %q: %w", rows[0][0], err)
	}
	section := kernelSection{At: time.Unix(ts, 0).UTC(), Counters: make(map[string]float64)}
	for _, row := range rows[1:] {
		if len(row) != 2 {
			continue
		}
		value, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		section.Counters[row[0]] = value
	}
	return section, nil
}

func discoverKernel(_ params.Map, sections plugin.Sections) iter.Seq2[plugin.Service, error] {
	return func(yield func(plugin.Service, error) bool) {
		section, ok := sections["kernel"].(kernelSection)
		if !ok {
			return
		}
		for _, c := range kernelCounters {
			if _, ok := section.Counters[c.name]; ok {
				yield(plugin.Service{}, nil)
				return
			}
		}
	}
}

// checkKernel reports counter rates. Every counter is sampled before an
// initialization signal is raised so all of them start in the same round.
func checkKernel(args plugin.CheckArgs) iter.Seq2[domain.Output, error] {
	return func(yield func(domain.Output, error) bool) {
		section, ok := args.Sections["kernel"].(kernelSection)
		if !ok {
			return
		}
		var ignore error
		for _, c := range kernelCounters {
			value, ok := section.Counters[c.name]
			if !ok {
				continue
			}
			rate, err := valuestore.GetRate(args.ValueStore, "kernel."+c.name, section.At, value, true)
			if err != nil {
				if _, isIgnore := domain.AsIgnoreResults(err); isIgnore {
					ignore = err
					continue
				}
				yield(nil, err)
				return
			}
			if !plugin.Yield(yield,
				domain.NewResult(domain.StateOK, fmt.Sprintf("%s: %.2f/s", c.label, rate)),
				domain.NewMetric(c.metric, rate),
			) {
				return
			}
		}
		if ignore != nil {
			yield(nil, ignore)
		}
	}
}

func kernelPlugin() plugin.CheckPlugin {
	return plugin.CheckPlugin{
		Name:         "kernel",
		Sections:     []domain.ParsedSectionName{"kernel"},
		ServiceName:  "Kernel Performance",
		Check:        checkKernel,
		Discovery:    discoverKernel,
		CheckRuleset: "kernel_performance",
	}
}
