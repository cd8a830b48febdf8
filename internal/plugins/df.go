package plugins

import (
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"

	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
)

// filesystem is one line of `df -PTk`.
type filesystem struct {
	Device  string
	FSType  string
	SizeKB  float64
	UsedKB  float64
	AvailKB float64
}

// dfSection maps mount points to filesystems.
type dfSection map[string]filesystem

func parseDF(rows [][]string) (any, error) {
	out := make(dfSection, len(rows))
	for _, row := range rows {
		if len(row) < 7 || row[0] == "Filesystem" {
			continue
		}
		size, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q of %s: %w", row[2], row[0], err)
		}
		used, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid used %q of %s: %w", row[3], row[0], err)
		}
		avail, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid available %q of %s: %w", row[4], row[0], err)
		}
		mount := strings.Join(row[6:], " ")
		out[mount] = filesystem{Device: row[0], FSType: row[1], SizeKB: size, UsedKB: used, AvailKB: avail}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func discoverDF(p params.Map, sections plugin.Sections) iter.Seq2[plugin.Service, error] {
	return func(yield func(plugin.Service, error) bool) {
		section, ok := sections["df"].(dfSection)
		if !ok {
			return
		}
		ignored := make(map[string]struct{})
		if items, ok := params.Elements(p["ignore_fs_types"]); ok {
			for _, item := range items {
				if name, ok := params.AsString(item); ok {
					ignored[name] = struct{}{}
				}
			}
		}
		mounts := make([]string, 0, len(section))
		for mount, fs := range section {
			if _, skip := ignored[fs.FSType]; skip || fs.SizeKB == 0 {
				continue
			}
			mounts = append(mounts, mount)
		}
		sort.Strings(mounts)
		for _, mount := range mounts {
			svc := plugin.Service{
				Item:   mount,
				Labels: map[string]string{"fstype": section[mount].FSType},
			}
			if !yield(svc, nil) {
				return
			}
		}
	}
}

// dfHostLabels yields one "filesystem/<type>" label per mounted filesystem type.
func dfHostLabels(_ params.Map, section any) iter.Seq2[plugin.HostLabel, error] {
	return func(yield func(plugin.HostLabel, error) bool) {
		parsed, ok := section.(dfSection)
		if !ok {
			return
		}
		types := make(map[string]struct{})
		for _, fs := range parsed {
			types[fs.FSType] = struct{}{}
		}
		names := make([]string, 0, len(types))
		for name := range types {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !yield(plugin.HostLabel{Name: "filesystem/" + name, Value: "yes"}, nil) {
				return
			}
		}
	}
}

func checkDF(args plugin.CheckArgs) iter.Seq2[domain.Output, error] {
	return func(yield func(domain.Output, error) bool) {
		section, ok := args.Sections["df"].(dfSection)
		if !ok {
			return
		}
		fs, ok := section[args.Item]
		if !ok {
			return
		}
		if fs.SizeKB <= 0 {
			yield(domain.NewResult(domain.StateUnknown, "Size of filesystem is 0 B"), nil)
			return
		}
		l, err := parseLevels(args.Params["levels"])
		if err != nil {
			yield(nil, err)
			return
		}

		sizeMB := fs.SizeKB / 1024
		usedMB := fs.UsedKB / 1024
		percent := 100 * fs.UsedKB / fs.SizeKB

		outputs := checkUpper("Used", percent, l, renderPercent,
			domain.NewMetric("fs_used_percent", percent).WithBoundaries(0, 100))
		usedMetric := domain.NewMetric("fs_used", usedMB).WithBoundaries(0, sizeMB)
		if l.set {
			usedMetric = usedMetric.WithLevels(sizeMB*l.warn/100, sizeMB*l.crit/100)
		}
		outputs = append(outputs,
			domain.NewResult(domain.StateOK, fmt.Sprintf("%s of %s", renderMB(usedMB), renderMB(sizeMB))),
			usedMetric,
			domain.NewMetric("fs_size", sizeMB),
		)
		plugin.Yield(yield, outputs...)
	}
}

func renderMB(mb float64) string {
	switch {
	case mb >= 1024*1024:
		return fmt.Sprintf("%.2f TiB", mb/(1024*1024))
	case mb >= 1024:
		return fmt.Sprintf("%.2f GiB", mb/1024)
	default:
		return fmt.Sprintf("%.2f MiB", mb)
	}
}

func dfPlugin() plugin.CheckPlugin {
	return plugin.CheckPlugin{
		Name:        "df",
		Sections:    []domain.ParsedSectionName{"df"},
		ServiceName: "Filesystem %s",
		Check:       checkDF,
		Discovery:   discoverDF,
		DiscoveryDefaultParameters: params.Map{
			"ignore_fs_types": params.List{
				params.String("tmpfs"),
				params.String("devtmpfs"),
				params.String("squashfs"),
				params.String("overlay"),
			},
		},
		DiscoveryRuleset: "inventory_df_rules",
		CheckDefaultParameters: params.Map{
			"levels": params.Tuple{params.Float(80), params.Float(90)},
		},
		CheckRuleset: "filesystem",
	}
}
