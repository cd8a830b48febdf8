package checkers

import (
	"context"
	"iter"

	"checkengine/internal/checking"
	"checkengine/internal/cluster"
	"checkengine/internal/domain"
	"checkengine/internal/hosts"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/prediction"
	"checkengine/internal/sections"
	"checkengine/internal/valuestore"
)

// SectionPluginMapper resolves section plugins by raw section name.
type SectionPluginMapper struct {
	registry *plugin.Registry
}

// NewSectionPluginMapper builds mapper over registry.
func NewSectionPluginMapper(registry *plugin.Registry) SectionPluginMapper {
	return SectionPluginMapper{registry: registry}
}

// Get returns the registered plugin or a trivial one parsing rows unchanged.
func (m SectionPluginMapper) Get(name domain.SectionName) plugin.SectionPlugin {
	if p, ok := m.registry.Section(name); ok {
		return p
	}
	return plugin.TrivialSectionPlugin(name)
}

// Lookup adapts mapper to section providers.
func (m SectionPluginMapper) Lookup() sections.PluginLookup {
	return m.Get
}

// HostLabelPlugin is the host label part of a section plugin.
type HostLabelPlugin struct {
	Function   plugin.HostLabelFunction
	Parameters params.Map
}

// HostLabelPluginMapper resolves host label functions by raw section name.
type HostLabelPluginMapper struct {
	registry *plugin.Registry
}

// NewHostLabelPluginMapper builds mapper over registry.
func NewHostLabelPluginMapper(registry *plugin.Registry) HostLabelPluginMapper {
	return HostLabelPluginMapper{registry: registry}
}

// Get returns the host label function of section, or one yielding no labels.
// Params: raw section name.
// Returns: host label plugin.
func (m HostLabelPluginMapper) Get(name domain.SectionName) HostLabelPlugin {
	p, ok := m.registry.Section(name)
	if !ok || p.HostLabel == nil {
		return HostLabelPlugin{Function: plugin.NoHostLabels, Parameters: params.Map{}}
	}
	return HostLabelPlugin{Function: p.HostLabel, Parameters: p.HostLabelDefaultParameters}
}

// logwatchPlugins need the host name among their discovery parameters.
var logwatchPlugins = map[domain.CheckPluginName]struct{}{
	"logwatch_ec":        {},
	"logwatch_ec_single": {},
	"logwatch":           {},
	"logwatch_groups":    {},
}

// DiscoveryPlugin is the discovery part of a check plugin.
type DiscoveryPlugin struct {
	Name       domain.CheckPluginName
	Sections   []domain.ParsedSectionName
	Function   plugin.DiscoveryFunction
	Parameters func(host domain.HostName) params.Map
}

// DiscoveryPluginMapper resolves discovery functions by check plugin name.
type DiscoveryPluginMapper struct {
	registry *plugin.Registry
}

// NewDiscoveryPluginMapper builds mapper over registry.
func NewDiscoveryPluginMapper(registry *plugin.Registry) DiscoveryPluginMapper {
	return DiscoveryPluginMapper{registry: registry}
}

// Get returns discovery plugin of name.
// Params: check plugin name.
// Returns: plugin and false when unregistered or without discovery function.
func (m DiscoveryPluginMapper) Get(name domain.CheckPluginName) (DiscoveryPlugin, bool) {
	p, ok := m.registry.Check(name)
	if !ok || p.Discovery == nil {
		return DiscoveryPlugin{}, false
	}
	defaults := p.DiscoveryDefaultParameters
	return DiscoveryPlugin{
		Name:     p.Name,
		Sections: p.Sections,
		Function: p.Discovery,
		Parameters: func(host domain.HostName) params.Map {
			return discoveryParameters(name, defaults, host)
		},
	}, true
}

// All yields discovery plugins sorted by name.
func (m DiscoveryPluginMapper) All() iter.Seq[DiscoveryPlugin] {
	return func(yield func(DiscoveryPlugin) bool) {
		for _, p := range m.registry.Checks() {
			dp, ok := m.Get(p.Name)
			if !ok {
				continue
			}
			if !yield(dp) {
				return
			}
		}
	}
}

func discoveryParameters(name domain.CheckPluginName, defaults params.Map, host domain.HostName) params.Map {
	out := make(params.Map, len(defaults)+1)
	for key, value := range defaults {
		out[key] = value
	}
	if _, ok := logwatchPlugins[name]; ok {
		out["host_name"] = params.String(string(host))
	}
	return out
}

// CheckPluginMapper builds engine plugins for services of one configuration snapshot.
type CheckPluginMapper struct {
	registry    *plugin.Registry
	hosts       *hosts.Cache
	stores      *valuestore.Manager
	predictions *prediction.Engine
}

// NewCheckPluginMapper builds mapper.
// Params: plugin registry, host cache, value store manager and prediction engine.
// Returns: mapper.
func NewCheckPluginMapper(registry *plugin.Registry, hostCache *hosts.Cache, stores *valuestore.Manager, predictions *prediction.Engine) *CheckPluginMapper {
	return &CheckPluginMapper{
		registry:    registry,
		hosts:       hostCache,
		stores:      stores,
		predictions: predictions,
	}
}

// Describe renders the description of a plugin item.
// Params: plugin name and item.
// Returns: description and false for unregistered plugins.
func (m *CheckPluginMapper) Describe(name domain.CheckPluginName, item string) (domain.ServiceName, bool) {
	p, ok := m.registry.Check(name)
	if !ok {
		return "", false
	}
	return p.Describe(item), true
}

// Plugin wraps the check plugin of a service for host.
// Clusters get the aggregation stream of their clustered service rule.
// Params: host or cluster name and service.
// Returns: engine plugin or nil when the plugin is not registered.
func (m *CheckPluginMapper) Plugin(host domain.HostName, service domain.ConfiguredService) *checking.Plugin {
	p, ok := m.registry.Check(service.CheckPluginName)
	if !ok {
		return nil
	}
	isCluster := m.hosts.IsCluster(host)
	stream := checking.HostStream(p.Check)
	if isCluster {
		stream = cluster.Stream(m.stores, m.hosts.ClusteredServiceConfiguration(host, service.Description), p)
	}
	return &checking.Plugin{
		Name:     p.Name,
		Sections: p.Sections,
		Function: checking.WrapCheckFunction(m.stores, p.Name, stream),
		Cluster:  isCluster,
	}
}

// Request assembles the assembler input for one service.
// Params: context (bounds prediction lookups), host, service and section broker.
// Returns: request with lazily computed final parameters.
func (m *CheckPluginMapper) Request(ctx context.Context, host domain.HostName, service domain.ConfiguredService, broker sections.Broker) checking.Request {
	req := checking.Request{
		Host:      host,
		Service:   service,
		Plugin:    m.Plugin(host, service),
		Broker:    broker,
		Nodes:     m.hosts.Nodes(host),
		IsCluster: m.hosts.IsCluster(host),
		EffectiveHost: func(node domain.HostName) domain.HostName {
			return m.hosts.EffectiveHost(node, service.Description)
		},
	}
	if p, ok := m.registry.Check(service.CheckPluginName); ok {
		req.Params = func() (params.Map, error) {
			return ComputeFinalCheckParameters(ctx, host, service, p, m.hosts, m.predictions)
		}
	}
	return req
}
