package plugins

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"checkengine/internal/checking"
	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/state"
	"checkengine/internal/valuestore"
)

func collect(t *testing.T, stream iter.Seq2[domain.Output, error]) []domain.Output {
	t.Helper()
	var out []domain.Output
	for item, err := range stream {
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func mustParse(t *testing.T, parse plugin.ParseFunction, rows [][]string) any {
	t.Helper()
	parsed, err := parse(rows)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	return parsed
}

var dfRows = [][]string{
	{"Filesystem", "Type", "1024-blocks", "Used", "Available", "Capacity", "Mounted", "on"},
	{"/dev/sda1", "ext4", "1000", "850", "150", "85%", "/var"},
	{"/dev/sda2", "xfs", "2048", "100", "1948", "5%", "/srv", "data"},
	{"tmpfs", "tmpfs", "512", "0", "512", "0%", "/run"},
}

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry()
	require.NoError(t, err)
	names := make([]domain.CheckPluginName, 0)
	for _, p := range registry.Checks() {
		names = append(names, p.Name)
	}
	require.Equal(t, []domain.CheckPluginName{"df", "kernel", "mgmt_uptime", "uptime"}, names)
	require.Error(t, Register(registry))
}

func TestDFFixedLevels(t *testing.T) {
	t.Parallel()

	section := mustParse(t, parseDF, dfRows)
	out := collect(t, checkDF(plugin.CheckArgs{
		Item:     "/var",
		Params:   dfPlugin().CheckDefaultParameters,
		Sections: plugin.Sections{"df": section},
	}))
	require.Len(t, out, 5)
	result := out[0].(domain.Result)
	require.Equal(t, domain.StateWarn, result.State)
	require.Equal(t, "Used: 85.00% (warn/crit at 80.00%/90.00%)", result.Summary)

	percent := out[1].(domain.Metric)
	require.Equal(t, "fs_used_percent", percent.Name)
	require.InDelta(t, 80, *percent.Warn, 1e-9)
}

func TestDFPredictiveLevels(t *testing.T) {
	t.Parallel()

	section := mustParse(t, parseDF, dfRows)
	predictive := params.Tuple{
		params.String("predictive"),
		params.Tuple{params.String("fs_used_percent"), params.Float(50), params.Tuple{params.Float(55), params.Float(60)}},
	}
	out := collect(t, checkDF(plugin.CheckArgs{
		Item:     "/var",
		Params:   params.Map{"levels": predictive},
		Sections: plugin.Sections{"df": section},
	}))
	result := out[0].(domain.Result)
	require.Equal(t, domain.StateCrit, result.State)
	require.Equal(t, "Used: 85.00% (prediction: 50.00%) (warn/crit at 55.00%/60.00%)", result.Summary)

	noReference := params.Tuple{
		params.String("predictive"),
		params.Tuple{params.String("fs_used_percent"), params.Null, params.Null},
	}
	out = collect(t, checkDF(plugin.CheckArgs{
		Item:     "/var",
		Params:   params.Map{"levels": noReference},
		Sections: plugin.Sections{"df": section},
	}))
	result = out[0].(domain.Result)
	require.Equal(t, domain.StateOK, result.State)
	require.Equal(t, "Used: 85.00% (no reference for prediction yet)", result.Summary)
}

func TestDFMissingItemYieldsNothing(t *testing.T) {
	t.Parallel()

	section := mustParse(t, parseDF, dfRows)
	out := collect(t, checkDF(plugin.CheckArgs{Item: "/missing", Sections: plugin.Sections{"df": section}}))
	require.Empty(t, out)
}

func TestDFDiscoveryAndHostLabels(t *testing.T) {
	t.Parallel()

	section := mustParse(t, parseDF, dfRows)
	var items []string
	for svc, err := range discoverDF(dfPlugin().DiscoveryDefaultParameters, plugin.Sections{"df": section}) {
		require.NoError(t, err)
		items = append(items, svc.Item)
	}
	require.Equal(t, []string{"/srv data", "/var"}, items)

	var labels []string
	for label, err := range dfHostLabels(nil, section) {
		require.NoError(t, err)
		labels = append(labels, label.Name)
	}
	require.Equal(t, []string{"filesystem/ext4", "filesystem/tmpfs", "filesystem/xfs"}, labels)
}

func TestUptime(t *testing.T) {
	t.Parallel()

	section := mustParse(t, parseUptime, [][]string{{"93784.5", "1000.0"}})
	out := collect(t, checkUptime(plugin.CheckArgs{Params: params.Map{}, Sections: plugin.Sections{"uptime": section}}))
	require.Equal(t, "Uptime: 1 day, 02:03:04", out[0].(domain.Result).Summary)
	require.InDelta(t, 93784.5, out[1].(domain.Metric).Value, 1e-9)

	out = collect(t, checkUptime(plugin.CheckArgs{
		Params:   params.Map{"min": params.Tuple{params.Float(172800), params.Float(86400)}},
		Sections: plugin.Sections{"uptime": section},
	}))
	result := out[0].(domain.Result)
	require.Equal(t, domain.StateWarn, result.State)
	require.Equal(t, "Uptime: 1 day, 02:03:04 (warn/crit below 2 days, 00:00:00/1 day, 00:00:00)", result.Summary)
}

func TestUptimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseUptime([][]string{{"soon"}})
	require.Error(t, err)
}

func TestKernelRatesThroughValueStore(t *testing.T) {
	t.Parallel()

	stores := valuestore.NewManager(state.NewMemoryStore())
	check := checking.WrapCheckFunction(stores, "kernel", checking.HostStream(checkKernel))
	run := func(rows [][]string) domain.ServiceCheckResult {
		section := mustParse(t, parseKernel, rows)
		result, err := check(context.Background(), "web01", checking.Args{Sections: plugin.Sections{"kernel": section}})
		require.NoError(t, err)
		return result
	}

	first := run([][]string{{"1000"}, {"ctxt", "500"}, {"processes", "10"}})
	require.False(t, first.Submittable)
	require.Contains(t, first.Output, "has been initialized")

	second := run([][]string{{"1010"}, {"ctxt", "700"}, {"processes", "30"}})
	require.True(t, second.Submittable)
	require.Equal(t, domain.StateOK, second.State)
	require.Contains(t, second.Output, "Process Creations: 2.00/s")
	require.Contains(t, second.Output, "Context Switches: 20.00/s")
	require.Len(t, second.Metrics, 2)
}
