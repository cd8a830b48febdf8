package sections

import (
	"sort"

	"checkengine/internal/domain"
	"checkengine/internal/plugin"
)

// Broker holds section providers of all host keys of one check cycle.
type Broker map[domain.HostKey]*Provider

// SectionKwargs collects sections of a single host for a plugin.
// Params: broker, host key and requested parsed section names.
// Returns: sections (absent ones nil) or nil when no section has data.
func SectionKwargs(broker Broker, key domain.HostKey, names []domain.ParsedSectionName) plugin.Sections {
	provider, ok := broker[key]
	if !ok {
		return nil
	}
	out := make(plugin.Sections, len(names))
	found := false
	for _, name := range names {
		data := provider.Parsed(name)
		out[name] = data
		if data != nil {
			found = true
		}
	}
	if !found {
		return nil
	}
	return out
}

// ClusterKwargs collects sections of all cluster nodes for a plugin.
// Params: broker, node keys and requested parsed section names.
// Returns: per-name node data or nil when no node has data.
func ClusterKwargs(broker Broker, keys []domain.HostKey, names []domain.ParsedSectionName) plugin.NodeSections {
	out := make(plugin.NodeSections, len(names))
	found := false
	for _, name := range names {
		nodes := make(map[domain.HostName]any, len(keys))
		for _, key := range keys {
			var data any
			if provider, ok := broker[key]; ok {
				data = provider.Parsed(name)
			}
			nodes[key.Hostname] = data
			if data != nil {
				found = true
			}
		}
		out[name] = nodes
	}
	if !found {
		return nil
	}
	return out
}

// CacheInfo aggregates freshness of consumed sections over host keys.
// Params: broker, host keys and parsed section names of the plugin.
// Returns: min cached_at / max interval or nil.
func CacheInfo(broker Broker, keys []domain.HostKey, names []domain.ParsedSectionName) *domain.CacheInfo {
	var (
		out   domain.CacheInfo
		found bool
	)
	for _, key := range keys {
		provider, ok := broker[key]
		if !ok {
			continue
		}
		info, ok := provider.CacheInfo(names)
		if !ok {
			continue
		}
		out, found = mergeCacheInfo(out, found, info), true
	}
	if !found {
		return nil
	}
	return &out
}

// Keys returns broker keys sorted by host then source type.
func (b Broker) Keys() []domain.HostKey {
	keys := make([]domain.HostKey, 0, len(b))
	for key := range b {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Hostname != keys[j].Hostname {
			return keys[i].Hostname < keys[j].Hostname
		}
		return keys[i].SourceType < keys[j].SourceType
	})
	return keys
}
