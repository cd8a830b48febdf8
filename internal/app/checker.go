package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"checkengine/internal/autochecks"
	"checkengine/internal/checkers"
	"checkengine/internal/checking"
	"checkengine/internal/clock"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/hosts"
	"checkengine/internal/logging"
	"checkengine/internal/metrics"
	"checkengine/internal/plugin"
	"checkengine/internal/prediction"
	"checkengine/internal/sections"
	"checkengine/internal/state"
	"checkengine/internal/submit"
	"checkengine/internal/valuestore"

	"go.uber.org/multierr"
)

const (
	// FetchServiceName is the per-host service summarizing data sources.
	FetchServiceName domain.ServiceName = "Check_MK"
	// FetchPluginName identifies the fetch summary in submitted results.
	FetchPluginName domain.CheckPluginName = "checkengine_fetch"
)

// Deps are the long-lived components a Checker runs with.
type Deps struct {
	Registry    *plugin.Registry
	Stores      *valuestore.Manager
	Predictions *prediction.Engine
	Crash       *checking.CrashReporter
	Autochecks  *autochecks.Store
	Submitter   submit.Submitter
	Metrics     *metrics.Metrics
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Checker keeps the latest raw data per host key and checks hosts with fresh data.
// Params: configuration snapshot and runtime dependencies.
// Returns: ingest sink and periodic check entrypoint.
type Checker struct {
	mu       sync.Mutex
	latest   map[domain.HostKey]domain.RawHostData
	lastSeen map[domain.HostName]time.Time

	hosts      *hosts.Cache
	registry   *plugin.Registry
	sectionMap checkers.SectionPluginMapper
	mapper     *checkers.CheckPluginMapper
	discovery  *checkers.Discovery
	assembler  *checking.Assembler
	autochecks *autochecks.Store
	submitter  submit.Submitter
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *slog.Logger
	workers    int
	timeout    time.Duration
}

// NewChecker wires checker for one configuration snapshot.
// Params: validated config and dependencies (nil submitter logs results).
// Returns: checker or host-model error.
func NewChecker(cfg config.Config, deps Deps) (*Checker, error) {
	if deps.Registry == nil {
		return nil, errors.New("plugin registry is required")
	}
	cache, err := hosts.New(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Stores == nil {
		deps.Stores = valuestore.NewManager(state.NewMemoryStore())
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Crash != nil && deps.Metrics != nil {
		m := deps.Metrics
		deps.Crash.OnReport(func(report checking.CrashReport) { m.ObserveCrash(report.Plugin) })
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if deps.Submitter == nil {
		deps.Submitter = submit.NewLogSubmitter(logger)
	}
	workers := cfg.Service.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Checker{
		latest:     make(map[domain.HostKey]domain.RawHostData),
		lastSeen:   make(map[domain.HostName]time.Time),
		hosts:      cache,
		registry:   deps.Registry,
		sectionMap: checkers.NewSectionPluginMapper(deps.Registry),
		mapper:     checkers.NewCheckPluginMapper(deps.Registry, cache, deps.Stores, deps.Predictions),
		discovery:  checkers.NewDiscovery(deps.Registry, logger),
		assembler:  checking.NewAssembler(deps.Crash, cfg.Service.Debug, logger),
		autochecks: deps.Autochecks,
		submitter:  deps.Submitter,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     logger,
		workers:    workers,
		timeout:    time.Duration(cfg.Service.CheckTimeoutSec) * time.Second,
	}, nil
}

// Push stores one payload as the latest data of its host key.
// Params: validated raw host data.
// Returns: always nil; payloads older than the stored one are dropped.
func (c *Checker) Push(data domain.RawHostData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(data)
	return nil
}

// PushBatch stores payloads in order.
// Params: validated raw host data slice.
// Returns: always nil.
func (c *Checker) PushBatch(batch []domain.RawHostData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, data := range batch {
		c.storeLocked(data)
	}
	return nil
}

func (c *Checker) storeLocked(data domain.RawHostData) {
	key := data.Key()
	if key.SourceType == "" {
		key.SourceType = domain.SourceTypeHost
	}
	if prev, ok := c.latest[key]; ok && prev.DT > data.DT {
		c.logger.Warn("raw data dropped as out of order", "host", string(data.Host), "source_type", string(key.SourceType), "dt", data.DT, "latest_dt", prev.DT)
		return
	}
	c.latest[key] = data
}

// Snapshot returns the latest payloads sorted by host key.
// Params: none.
// Returns: copy of stored payloads.
func (c *Checker) Snapshot() []domain.RawHostData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RawHostData, 0, len(c.latest))
	for _, data := range c.latest {
		out = append(out, data)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Host != out[j].Host {
			return out[i].Host < out[j].Host
		}
		return out[i].SourceType < out[j].SourceType
	})
	return out
}

// RunCycle checks every configured host that received data since its last check,
// plus the clusters those hosts belong to, and submits the results.
// Params: context bounding the cycle.
// Returns: combined per-host errors.
func (c *Checker) RunCycle(ctx context.Context) error {
	started := c.clock.Now()
	fetched := checkers.ParseRawData(c.Snapshot())
	broker := checkers.BuildBroker(fetched, c.sectionMap.Lookup(), c.logger)
	due := c.dueHosts(fetched)

	byHost := make(map[domain.HostName][]checkers.Fetched)
	for _, f := range fetched {
		byHost[f.Key.Hostname] = append(byHost[f.Key.Hostname], f)
	}

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		errs   error
		tokens = make(chan struct{}, c.workers)
	)
	for _, host := range due {
		select {
		case <-ctx.Done():
			wg.Wait()
			return multierr.Append(errs, ctx.Err())
		case tokens <- struct{}{}:
		}
		wg.Add(1)
		go func(host domain.HostName) {
			defer wg.Done()
			defer func() { <-tokens }()
			if err := c.checkAndSubmit(ctx, host, broker, byHost[host]); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("host %s: %w", host, err))
				errMu.Unlock()
			}
		}(host)
	}
	wg.Wait()

	c.metrics.ObserveCycle(c.clock.Now().Sub(started), len(due))
	return errs
}

// CheckOnce checks one host on the stored data regardless of freshness.
// Params: context and host or cluster name.
// Returns: results (not submitted) and check error.
func (c *Checker) CheckOnce(ctx context.Context, host domain.HostName) (submit.Batch, error) {
	fetched := checkers.ParseRawData(c.Snapshot())
	broker := checkers.BuildBroker(fetched, c.sectionMap.Lookup(), c.logger)
	var own []checkers.Fetched
	for _, f := range fetched {
		if f.Key.Hostname == host {
			own = append(own, f)
		}
	}
	return c.CheckHost(ctx, host, broker, own)
}

// dueHosts selects configured hosts whose data is newer than their last check.
func (c *Checker) dueHosts(fetched []checkers.Fetched) []domain.HostName {
	newest := make(map[domain.HostName]time.Time)
	for _, f := range fetched {
		host := f.Key.Hostname
		if _, ok := c.hosts.Host(host); !ok {
			continue
		}
		if f.FetchedAt.After(newest[host]) {
			newest[host] = f.FetchedAt
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	set := make(map[domain.HostName]struct{})
	for host, at := range newest {
		if !at.After(c.lastSeen[host]) {
			continue
		}
		c.lastSeen[host] = at
		set[host] = struct{}{}
		for _, clusterName := range c.hosts.ClustersOf(host) {
			set[clusterName] = struct{}{}
		}
	}
	out := make([]domain.HostName, 0, len(set))
	for host := range set {
		out = append(out, host)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Checker) checkAndSubmit(ctx context.Context, host domain.HostName, broker sections.Broker, fetched []checkers.Fetched) error {
	batch, checkErr := c.CheckHost(ctx, host, broker, fetched)
	if checkErr != nil {
		c.logger.Error("host check aborted", "host", string(host), "checked", len(batch.Results), "error", checkErr.Error())
	}
	if len(batch.Results) == 0 {
		return checkErr
	}
	if err := c.submitter.Submit(ctx, batch); err != nil {
		c.logger.Error("result submit failed", "host", string(host), "error", err.Error())
		return multierr.Append(checkErr, fmt.Errorf("submit: %w", err))
	}
	return checkErr
}

// CheckHost checks all services of one host or cluster sequentially.
// Params: context, host, section broker and the host's parse outcomes.
// Returns: results gathered so far and an error for timeouts and contract violations.
func (c *Checker) CheckHost(ctx context.Context, host domain.HostName, broker sections.Broker, fetched []checkers.Fetched) (submit.Batch, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	batch := submit.Batch{Host: host, CheckedAt: c.clock.Now()}

	services, err := c.Services(host)
	if err != nil {
		return batch, err
	}
	results, checkErr := c.checkServices(ctx, host, broker, services)
	// The fetch summary goes first; it reports parse errors raised while checking.
	if !c.hosts.IsCluster(host) && len(fetched) > 0 {
		results = append([]domain.AggregatedResult{c.fetchResult(broker, fetched)}, results...)
	}
	batch.Results = results
	return batch, checkErr
}

func (c *Checker) checkServices(ctx context.Context, host domain.HostName, broker sections.Broker, services []domain.ConfiguredService) ([]domain.AggregatedResult, error) {
	out := make([]domain.AggregatedResult, 0, len(services)+1)
	for _, svc := range services {
		started := c.clock.Now()
		res, err := c.assembler.GetAggregatedResult(ctx, c.mapper.Request(ctx, host, svc, broker))
		if err != nil {
			var cfgErr *domain.ConfigurationError
			if errors.As(err, &cfgErr) {
				c.logger.Error("service skipped", "host", string(host), "service", string(svc.Description), "error", err.Error())
				continue
			}
			return out, fmt.Errorf("service %q: %w", svc.Description, err)
		}
		c.metrics.ObserveCheck(svc.CheckPluginName, res.Result.State, c.clock.Now().Sub(started))
		out = append(out, res)
	}
	return out, nil
}

// fetchResult summarizes all data sources of one host.
func (c *Checker) fetchResult(broker sections.Broker, fetched []checkers.Fetched) domain.AggregatedResult {
	states := make([]domain.State, 0, len(fetched))
	heads := make([]string, 0, len(fetched))
	var details []string
	for _, f := range fetched {
		summary := checkers.SummarizeFetch(f, broker[f.Key])
		states = append(states, summary.State)
		heads = append(heads, summary.Summary())
		if _, rest, ok := strings.Cut(summary.Output, "\n"); ok {
			details = append(details, rest)
		}
	}
	output := strings.Join(append([]string{strings.Join(heads, ", ")}, details...), "\n")
	return domain.AggregatedResult{
		Service: domain.ConfiguredService{
			CheckPluginName: FetchPluginName,
			Description:     FetchServiceName,
		},
		DataReceived: true,
		Result:       domain.Submittable(domain.WorstState(states...), output, nil),
	}
}

// Services lists services checked on host: node services minus those claimed by
// clusters, or for a cluster the claimed services of its nodes.
// Params: host or cluster name.
// Returns: services sorted by description, or autochecks load error.
func (c *Checker) Services(host domain.HostName) ([]domain.ConfiguredService, error) {
	if !c.hosts.IsCluster(host) {
		own, err := c.ownServices(host)
		if err != nil {
			return nil, err
		}
		return c.hosts.NodeServices(host, own), nil
	}
	nodeServices := make(map[domain.HostName][]domain.ConfiguredService)
	for _, node := range c.hosts.Nodes(host) {
		own, err := c.ownServices(node)
		if err != nil {
			return nil, err
		}
		nodeServices[node] = own
	}
	return c.hosts.ClusterServices(host, nodeServices), nil
}

// ownServices merges discovered and static services; static ones win on equal id.
func (c *Checker) ownServices(host domain.HostName) ([]domain.ConfiguredService, error) {
	entries, err := c.autochecks.Load(host)
	if err != nil {
		return nil, err
	}
	static := c.hosts.StaticServices(host)
	enforced := make(map[domain.ServiceID]struct{}, len(static))
	out := make([]domain.ConfiguredService, 0, len(entries)+len(static))
	for _, svc := range static {
		if svc.Description == "" {
			svc.Description = c.describe(svc.ID())
		}
		enforced[svc.ID()] = struct{}{}
		out = append(out, svc)
	}
	for _, svc := range autochecks.ToServices(entries, c.mapper.Describe) {
		if _, ok := enforced[svc.ID()]; ok {
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

func (c *Checker) describe(id domain.ServiceID) domain.ServiceName {
	if name, ok := c.mapper.Describe(id.Plugin, id.Item); ok {
		return name
	}
	return domain.ServiceName(id.String())
}

// Discover runs service and host-label discovery on the latest data of host.
// Params: host name and save switch (writes autochecks when true).
// Returns: discovery result or save error.
func (c *Checker) Discover(host domain.HostName, save bool) (checkers.DiscoveryResult, error) {
	fetched := checkers.ParseRawData(c.Snapshot())
	broker := checkers.BuildBroker(fetched, c.sectionMap.Lookup(), c.logger)
	result := c.discovery.Run(host, broker)
	for name, err := range result.Failed {
		c.logger.Warn("discovery failed", "host", string(host), "plugin", string(name), "error", err.Error())
	}
	if save {
		if err := c.autochecks.Save(host, result.Services); err != nil {
			return result, err
		}
		c.logger.Info("autochecks written", "host", string(host), "services", len(result.Services))
	}
	return result, nil
}

// Close releases the submitter.
func (c *Checker) Close() error {
	return c.submitter.Close()
}
