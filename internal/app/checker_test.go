package app

import (
	"context"
	"iter"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"checkengine/internal/autochecks"
	"checkengine/internal/checking"
	"checkengine/internal/clock"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/metrics"
	"checkengine/internal/plugin"
	"checkengine/internal/plugins"
	"checkengine/internal/submit"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const checkerConfig = `[service]
name = "checkengine"
mode = "single"
workers = 2

[host.db01]
address = "10.0.0.11"

[[host.db01.service]]
plugin = "boom"
description = "Boom"

[host.db02]
address = "10.0.0.12"

[cluster.dbc]
nodes = ["db01", "db02"]

[[cluster.dbc.service]]
pattern = "Filesystem *"
mode = "worst"
`

type recordingSubmitter struct {
	mu      sync.Mutex
	batches []submit.Batch
}

func (r *recordingSubmitter) Submit(_ context.Context, batch submit.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingSubmitter) Close() error { return nil }

// take returns recorded batches by host and forgets them.
func (r *recordingSubmitter) take() map[domain.HostName]submit.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.HostName]submit.Batch, len(r.batches))
	for _, batch := range r.batches {
		out[batch.Host] = batch
	}
	r.batches = nil
	return out
}

func descriptions(batch submit.Batch) []string {
	out := make([]string, 0, len(batch.Results))
	for _, res := range batch.Results {
		out = append(out, string(res.Service.Description))
	}
	return out
}

func dfAgentOutput(usedKB int, uptime float64) string {
	return strings.Join([]string{
		"<<<df>>>",
		"/dev/sda1 ext4 1000 " + strconv.Itoa(usedKB) + " " + strconv.Itoa(1000-usedKB) + " 0% /var",
		"<<<uptime>>>",
		strconv.FormatFloat(uptime, 'f', 1, 64),
	}, "\n")
}

// boomPlugin crashes on every check.
func boomPlugin() plugin.CheckPlugin {
	return plugin.CheckPlugin{
		Name:        "boom",
		Sections:    []domain.ParsedSectionName{"uptime"},
		ServiceName: "Boom",
		Check: func(plugin.CheckArgs) iter.Seq2[domain.Output, error] {
			return func(func(domain.Output, error) bool) {
				panic("boom")
			}
		},
	}
}

type checkerFixture struct {
	checker   *Checker
	submitter *recordingSubmitter
	metrics   *metrics.Metrics
	clock     *clock.ManualClock
}

func newCheckerFixture(t *testing.T) checkerFixture {
	t.Helper()
	cfg, err := config.Parse([]byte(checkerConfig))
	require.NoError(t, err)

	registry, err := plugins.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, registry.RegisterCheck(boomPlugin()))

	clk := clock.NewManualClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	rec := &recordingSubmitter{}
	m := metrics.New("test")
	checker, err := NewChecker(cfg, Deps{
		Registry:   registry,
		Crash:      checking.NewCrashReporter("", clk, nil),
		Autochecks: autochecks.NewStore(t.TempDir()),
		Submitter:  rec,
		Metrics:    m,
		Clock:      clk,
	})
	require.NoError(t, err)
	return checkerFixture{checker: checker, submitter: rec, metrics: m, clock: clk}
}

func TestCheckerPushDropsOutOfOrder(t *testing.T) {
	t.Parallel()

	fx := newCheckerFixture(t)
	require.NoError(t, fx.checker.PushBatch([]domain.RawHostData{
		{DT: 2000, Host: "db01", SourceType: domain.SourceTypeHost, Payload: "new"},
		{DT: 1000, Host: "db01", SourceType: domain.SourceTypeHost, Payload: "old"},
	}))
	require.NoError(t, fx.checker.Push(domain.RawHostData{DT: 1500, Host: "db01", SourceType: domain.SourceTypeManagement, Payload: "mgmt"}))

	snapshot := fx.checker.Snapshot()
	require.Len(t, snapshot, 2)
	require.Equal(t, "new", snapshot[0].Payload)
	require.Equal(t, domain.SourceTypeManagement, snapshot[1].SourceType)
}

func TestRunCycleChecksHostsAndClusters(t *testing.T) {
	t.Parallel()

	fx := newCheckerFixture(t)
	at := fx.clock.Now()
	require.NoError(t, fx.checker.PushBatch([]domain.RawHostData{
		{DT: at.UnixMilli(), Host: "db01", SourceType: domain.SourceTypeHost, Payload: dfAgentOutput(850, 3600)},
		{DT: at.UnixMilli(), Host: "db02", SourceType: domain.SourceTypeHost, Payload: dfAgentOutput(500, 7200)},
		{DT: at.UnixMilli(), Host: "unknown", SourceType: domain.SourceTypeHost, Payload: dfAgentOutput(1, 1)},
	}))

	for _, host := range []domain.HostName{"db01", "db02"} {
		result, err := fx.checker.Discover(host, true)
		require.NoError(t, err)
		require.Len(t, result.Services, 2)
	}

	require.NoError(t, fx.checker.RunCycle(context.Background()))
	batches := fx.submitter.take()
	require.Len(t, batches, 3)

	db01 := batches["db01"]
	require.Equal(t, []string{"Check_MK", "Boom", "Uptime"}, descriptions(db01))
	require.Equal(t, "[agent] Success", db01.Results[0].Result.Summary())
	require.Equal(t, domain.StateCrit, db01.Results[1].Result.State)
	require.Contains(t, db01.Results[1].Result.Output, "Crash-ID")
	require.Equal(t, domain.StateOK, db01.Results[2].Result.State)
	require.Equal(t, at, db01.CheckedAt)

	require.Equal(t, []string{"Check_MK", "Uptime"}, descriptions(batches["db02"]))

	dbc := batches["dbc"]
	require.Equal(t, []string{"Filesystem /var"}, descriptions(dbc))
	require.Equal(t, domain.StateWarn, dbc.Results[0].Result.State)
	require.Contains(t, dbc.Results[0].Result.Output, "Worst mode, active node: [db01]")
	require.Equal(t, 1.0, counterValue(t, fx.metrics, "test_checks_crashes_total", map[string]string{"plugin": "boom"}))
	require.Equal(t, 2.0, counterValue(t, fx.metrics, "test_checks_total", map[string]string{"plugin": "uptime", "state": "OK"}))

	// Nothing new arrived: no host is due.
	require.NoError(t, fx.checker.RunCycle(context.Background()))
	require.Empty(t, fx.submitter.take())

	fx.clock.Advance(time.Minute)
	require.NoError(t, fx.checker.Push(domain.RawHostData{
		DT: fx.clock.Now().UnixMilli(), Host: "db02", SourceType: domain.SourceTypeHost, Payload: dfAgentOutput(950, 7260),
	}))
	require.NoError(t, fx.checker.RunCycle(context.Background()))
	batches = fx.submitter.take()
	hosts := make([]string, 0, len(batches))
	for host := range batches {
		hosts = append(hosts, string(host))
	}
	sort.Strings(hosts)
	require.Equal(t, []string{"db02", "dbc"}, hosts)
	require.Equal(t, domain.StateCrit, batches["dbc"].Results[0].Result.State)
	require.Contains(t, batches["dbc"].Results[0].Result.Output, "Worst mode, active node: [db02]")
}

func TestRunCycleReportsFetchErrors(t *testing.T) {
	t.Parallel()

	fx := newCheckerFixture(t)
	at := fx.clock.Now()
	require.NoError(t, fx.checker.PushBatch([]domain.RawHostData{
		{DT: at.UnixMilli(), Host: "db02", SourceType: domain.SourceTypeHost, Payload: "<<<uptime>>>\nsoon"},
		{DT: at.UnixMilli(), Host: "db02", SourceType: domain.SourceTypeManagement, Error: "connection refused"},
	}))

	require.NoError(t, fx.checker.autochecks.Save("db02", []autochecks.Entry{{CheckPluginName: "uptime"}}))

	require.NoError(t, fx.checker.RunCycle(context.Background()))
	batches := fx.submitter.take()
	db02 := batches["db02"]
	require.Equal(t, []string{"Check_MK", "Uptime"}, descriptions(db02))
	require.False(t, db02.Results[1].DataReceived)
	fetch := db02.Results[0]
	require.Equal(t, FetchPluginName, fetch.Service.CheckPluginName)
	require.Equal(t, domain.StateCrit, fetch.Result.State)
	require.Equal(t, "[agent] Success, Parsing of section uptime failed(!), [mgmt] connection refused(!!)", fetch.Result.Summary())

	// A cluster without claimed services submits nothing.
	require.Empty(t, batches["dbc"].Results)
}

func TestCheckerServicesStaticWinsOverDiscovered(t *testing.T) {
	t.Parallel()

	fx := newCheckerFixture(t)
	require.NoError(t, fx.checker.autochecks.Save("db01", []autochecks.Entry{
		{CheckPluginName: "boom"},
		{CheckPluginName: "uptime"},
		{CheckPluginName: "nope", Item: "x"},
	}))

	services, err := fx.checker.Services("db01")
	require.NoError(t, err)
	got := make([]string, 0, len(services))
	for _, svc := range services {
		got = append(got, string(svc.Description)+"/"+string(svc.Origin))
	}
	require.Equal(t, []string{"Boom/static", "Uptime/discovered", "nope:x/discovered"}, got)
}

func counterValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			got := make(map[string]string, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			for key, value := range labels {
				if got[key] != value {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}
