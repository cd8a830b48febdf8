package checkers

import (
	"fmt"
	"log/slog"
	"sort"

	"checkengine/internal/autochecks"
	"checkengine/internal/domain"
	"checkengine/internal/logging"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/sections"
)

// DiscoveryResult is the outcome of discovering one host.
type DiscoveryResult struct {
	Services   []autochecks.Entry
	HostLabels []plugin.HostLabel
	// Failed maps plugin names to the error that stopped their discovery.
	Failed map[domain.CheckPluginName]error
}

// Discovery runs discovery and host label plugins over a broker.
type Discovery struct {
	plugins DiscoveryPluginMapper
	labels  HostLabelPluginMapper
	logger  *slog.Logger
}

// NewDiscovery builds discovery runner.
func NewDiscovery(registry *plugin.Registry, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Discovery{
		plugins: NewDiscoveryPluginMapper(registry),
		labels:  NewHostLabelPluginMapper(registry),
		logger:  logger,
	}
}

// Run discovers services and host labels of host.
// A failing plugin is logged and skipped, the others still run.
// Params: host name and broker holding its providers.
// Returns: discovered services (deduplicated by id), host labels and per-plugin failures.
func (d *Discovery) Run(host domain.HostName, broker sections.Broker) DiscoveryResult {
	result := DiscoveryResult{Failed: make(map[domain.CheckPluginName]error)}
	seen := make(map[domain.ServiceID]struct{})

	for dp := range d.plugins.All() {
		key := domain.HostKey{Hostname: host, SourceType: domain.SourceTypeFor(dp.Name)}
		kwargs := sections.SectionKwargs(broker, key, dp.Sections)
		if kwargs == nil {
			continue
		}
		entries, err := discoverPlugin(dp, host, kwargs)
		if err != nil {
			d.logger.Warn("discovery failed", "host", string(host), "plugin", string(dp.Name), "error", err.Error())
			result.Failed[dp.Name] = err
			continue
		}
		for _, entry := range entries {
			if _, dup := seen[entry.ID()]; dup {
				continue
			}
			seen[entry.ID()] = struct{}{}
			result.Services = append(result.Services, entry)
		}
	}

	result.HostLabels = d.hostLabels(host, broker)
	return result
}

func discoverPlugin(dp DiscoveryPlugin, host domain.HostName, kwargs plugin.Sections) (entries []autochecks.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	for svc, err := range dp.Function(dp.Parameters(host), kwargs) {
		if err != nil {
			return nil, err
		}
		entry := autochecks.Entry{
			CheckPluginName: string(dp.Name),
			Item:            svc.Item,
			ServiceLabels:   svc.Labels,
		}
		if len(svc.Parameters) > 0 {
			entry.Parameters, _ = params.ToAny(svc.Parameters).(map[string]any)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (d *Discovery) hostLabels(host domain.HostName, broker sections.Broker) []plugin.HostLabel {
	byName := make(map[string]plugin.HostLabel)
	for _, sourceType := range []domain.SourceType{domain.SourceTypeHost, domain.SourceTypeManagement} {
		provider, ok := broker[domain.HostKey{Hostname: host, SourceType: sourceType}]
		if !ok {
			continue
		}
		for _, name := range provider.Available() {
			raw, ok := provider.Source(name)
			if !ok {
				continue
			}
			hp := d.labels.Get(raw)
			for label, err := range hp.Function(hp.Parameters, provider.Parsed(name)) {
				if err != nil {
					d.logger.Warn("host label discovery failed", "host", string(host), "section", string(raw), "error", err.Error())
					break
				}
				byName[label.Name] = label
			}
		}
	}

	out := make([]plugin.HostLabel, 0, len(byName))
	for _, label := range byName {
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
