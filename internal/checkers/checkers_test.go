package checkers

import (
	"context"
	"errors"
	"iter"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"checkengine/internal/checking"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/hosts"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/plugins"
	"checkengine/internal/state"
	"checkengine/internal/valuestore"
)

const hostsConfig = `[service]
name = "checkengine"

[host.db01]
address = "10.0.0.11"
only_from = ["10.0.0.1", "10.0.0.2"]
service_level = 20

[host.db02]
address = "10.0.0.12"

[cluster.dbc]
nodes = ["db01", "db02"]

[[cluster.dbc.service]]
pattern = "Filesystem *"
mode = "worst"
`

func newHostCache(t *testing.T) *hosts.Cache {
	t.Helper()
	cfg, err := config.Parse([]byte(hostsConfig))
	require.NoError(t, err)
	cache, err := hosts.New(cfg)
	require.NoError(t, err)
	return cache
}

func newBuiltinRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	registry, err := plugins.NewRegistry()
	require.NoError(t, err)
	return registry
}

func dfPayload(usedKB int) string {
	return strings.Join([]string{
		"<<<df>>>",
		"/dev/sda1 ext4 1000 " + strconv.Itoa(usedKB) + " " + strconv.Itoa(1000-usedKB) + " 0% /var",
		"<<<uptime>>>",
		"3600.0",
	}, "\n")
}

func TestSectionPluginMapperFallsBackToTrivial(t *testing.T) {
	t.Parallel()

	mapper := NewSectionPluginMapper(newBuiltinRegistry(t))
	trivial := mapper.Get("lnx_if")
	require.Equal(t, domain.ParsedSectionName("lnx_if"), trivial.ParsedSectionName)
	parsed, err := trivial.Parse([][]string{{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b"}}, parsed)

	require.NotNil(t, mapper.Get("df").HostLabel)
	require.NotNil(t, NewHostLabelPluginMapper(newBuiltinRegistry(t)).Get("uptime").Function)
}

func TestDiscoveryParametersInjectHostNameForLogwatch(t *testing.T) {
	t.Parallel()

	registry := plugin.NewRegistry()
	noop := func(plugin.CheckArgs) iter.Seq2[domain.Output, error] {
		return func(func(domain.Output, error) bool) {}
	}
	discover := func(params.Map, plugin.Sections) iter.Seq2[plugin.Service, error] {
		return func(func(plugin.Service, error) bool) {}
	}
	for _, name := range []domain.CheckPluginName{"logwatch", "logwatch_ec", "df_like"} {
		require.NoError(t, registry.RegisterCheck(plugin.CheckPlugin{
			Name:                       name,
			Sections:                   []domain.ParsedSectionName{"logwatch"},
			ServiceName:                "Log %s",
			Check:                      noop,
			Discovery:                  discover,
			DiscoveryDefaultParameters: params.Map{"mode": params.String("default")},
		}))
	}

	mapper := NewDiscoveryPluginMapper(registry)
	logwatch, ok := mapper.Get("logwatch_ec")
	require.True(t, ok)
	got := logwatch.Parameters("web01")
	require.Equal(t, params.String("web01"), got["host_name"])
	require.Equal(t, params.String("default"), got["mode"])

	other, ok := mapper.Get("df_like")
	require.True(t, ok)
	require.NotContains(t, other.Parameters("web01"), "host_name")

	_, ok = mapper.Get("missing")
	require.False(t, ok)
}

func TestComputeFinalCheckParameters(t *testing.T) {
	t.Parallel()

	cache := newHostCache(t)
	p := plugin.CheckPlugin{
		Name:                   "df",
		CheckDefaultParameters: params.Map{"levels": params.Tuple{params.Float(80), params.Float(90)}},
	}
	service := domain.ConfiguredService{
		CheckPluginName: "df",
		Item:            "/var",
		Description:     "Filesystem /var",
		Parameters: map[string]any{
			"who":   []any{params.MarkerTag, "host_name", nil},
			"svc":   []any{params.MarkerTag, "service_name", nil},
			"from":  []any{params.MarkerTag, "only_from", nil},
			"level": []any{params.MarkerTag, "service_level", nil},
		},
	}

	got, err := ComputeFinalCheckParameters(context.Background(), "db01", service, p, cache, nil)
	require.NoError(t, err)
	require.Equal(t, params.String("db01"), got["who"])
	require.Equal(t, params.String("Filesystem /var"), got["svc"])
	require.Equal(t, params.List{params.String("10.0.0.1"), params.String("10.0.0.2")}, got["from"])
	require.Equal(t, params.Int(20), got["level"])
	require.Equal(t, params.Tuple{params.Float(80), params.Float(90)}, got["levels"])
	require.False(t, params.NeedsPostprocessing(got))
}

func TestComputeFinalCheckParametersWithoutPrediction(t *testing.T) {
	t.Parallel()

	service := domain.ConfiguredService{
		CheckPluginName: "df",
		Description:     "Filesystem /var",
		Parameters: map[string]any{
			"levels": []any{params.MarkerTag, "predictive_levels", map[string]any{
				params.ReferenceMetricKey: "fs_used_percent",
				params.DirectionKey:       "upper",
				"period":                  "wday",
				"horizon":                 int64(90),
				"levels":                  []any{"absolute", []any{5.0, 10.0}},
			}},
		},
	}
	_, err := ComputeFinalCheckParameters(context.Background(), "db01", service, plugin.CheckPlugin{Name: "df"}, newHostCache(t), nil)
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestParseRawDataMergesPiggyback(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := []domain.RawHostData{
		{
			DT:   now.UnixMilli(),
			Host: "web01",
			Payload: strings.Join([]string{
				"<<<uptime>>>",
				"100.0",
				"<<<<vm01>>>>",
				"<<<uptime>>>",
				"50.0",
				"<<<<>>>>",
			}, "\n"),
		},
		{DT: now.UnixMilli(), Host: "vm01", Payload: "<<<df>>>\n/dev/vda ext4 10 1 9 10% /"},
		{DT: now.UnixMilli(), Host: "db01", SourceType: domain.SourceTypeManagement, Error: "connection refused"},
	}

	fetched := ParseRawData(raw)
	require.Len(t, fetched, 3)
	require.Equal(t, domain.HostKey{Hostname: "db01", SourceType: domain.SourceTypeManagement}, fetched[0].Key)
	require.EqualError(t, fetched[0].Err, "connection refused")

	vm := fetched[1]
	require.Equal(t, domain.HostName("vm01"), vm.Key.Hostname)
	require.NoError(t, vm.Err)
	require.Equal(t, [][]string{{"50.0"}}, vm.Sections.Sections["uptime"])
	require.Len(t, vm.Sections.Sections["df"], 1)

	broker := BuildBroker(fetched, NewSectionPluginMapper(newBuiltinRegistry(t)).Lookup(), nil)
	require.Len(t, broker, 2)

	summary := SummarizeFetch(fetched[0], nil)
	require.Equal(t, domain.StateCrit, summary.State)
	require.Equal(t, "[mgmt] connection refused(!!)", summary.Output)

	ok := SummarizeFetch(vm, broker[vm.Key])
	require.Equal(t, domain.StateOK, ok.State)
	require.Equal(t, "[agent] Success", ok.Summary())
}

func TestSummarizeFetchReportsParseErrors(t *testing.T) {
	t.Parallel()

	fetched := ParseRawData([]domain.RawHostData{{DT: 1, Host: "web01", Payload: "<<<uptime>>>\nsoon"}})
	broker := BuildBroker(fetched, NewSectionPluginMapper(newBuiltinRegistry(t)).Lookup(), nil)
	provider := broker[fetched[0].Key]
	require.Nil(t, provider.Parsed("uptime"))

	summary := SummarizeFetch(fetched[0], provider)
	require.Equal(t, domain.StateWarn, summary.State)
	require.Equal(t, "[agent] Success, Parsing of section uptime failed(!)", summary.Summary())
}

func TestDiscoveryRun(t *testing.T) {
	t.Parallel()

	registry := newBuiltinRegistry(t)
	fetched := ParseRawData([]domain.RawHostData{{DT: 1, Host: "db01", Payload: dfPayload(850)}})
	broker := BuildBroker(fetched, NewSectionPluginMapper(registry).Lookup(), nil)

	result := NewDiscovery(registry, nil).Run("db01", broker)
	require.Empty(t, result.Failed)
	ids := make([]string, 0, len(result.Services))
	for _, svc := range result.Services {
		ids = append(ids, svc.ID().String())
	}
	require.Equal(t, []string{"df:/var", "uptime"}, ids)
	require.Equal(t, []plugin.HostLabel{{Name: "filesystem/ext4", Value: "yes"}}, result.HostLabels)
}

func TestCheckPluginMapperClusterWorstMode(t *testing.T) {
	t.Parallel()

	registry := newBuiltinRegistry(t)
	cache := newHostCache(t)
	stores := valuestore.NewManager(state.NewMemoryStore())
	mapper := NewCheckPluginMapper(registry, cache, stores, nil)

	fetched := ParseRawData([]domain.RawHostData{
		{DT: 1, Host: "db01", Payload: dfPayload(850)},
		{DT: 1, Host: "db02", Payload: dfPayload(500)},
	})
	broker := BuildBroker(fetched, NewSectionPluginMapper(registry).Lookup(), nil)

	description, ok := mapper.Describe("df", "/var")
	require.True(t, ok)
	service := domain.ConfiguredService{CheckPluginName: "df", Item: "/var", Description: description}

	assembler := checking.NewAssembler(nil, false, nil)
	got, err := assembler.GetAggregatedResult(context.Background(), mapper.Request(context.Background(), "dbc", service, broker))
	require.NoError(t, err)
	require.True(t, got.DataReceived)
	require.Equal(t, domain.StateWarn, got.Result.State)
	require.Contains(t, got.Result.Output, "Worst mode, active node: [db01]")
	require.Contains(t, got.Result.Output, "[db02]: Used: 50.00%")

	single, err := assembler.GetAggregatedResult(context.Background(), mapper.Request(context.Background(), "db02", service, broker))
	require.NoError(t, err)
	require.Equal(t, domain.StateOK, single.Result.State)

	missing, err := assembler.GetAggregatedResult(context.Background(),
		mapper.Request(context.Background(), "db01", domain.ConfiguredService{CheckPluginName: "nope", Description: "Nope"}, broker))
	require.NoError(t, err)
	require.Equal(t, domain.CheckNotImplemented(), missing.Result)
}
