package domain

import "strings"

// ManagementPrefix marks check plugins that query the management board.
const ManagementPrefix = "mgmt_"

// HostName identifies a monitored host or cluster.
type HostName string

// ServiceName is the human readable service description.
type ServiceName string

// SectionName names one raw agent section.
type SectionName string

// ParsedSectionName names the parsed form consumed by check plugins.
type ParsedSectionName string

// CheckPluginName names one check plugin.
type CheckPluginName string

// IsManagement reports whether plugin belongs to the management board.
// Params: none.
// Returns: true for names with the management prefix.
func (n CheckPluginName) IsManagement() bool {
	return strings.HasPrefix(string(n), ManagementPrefix)
}

// SourceType selects host or management data of one host.
type SourceType string

const (
	// SourceTypeHost selects regular agent/SNMP data.
	SourceTypeHost SourceType = "HOST"
	// SourceTypeManagement selects management board data.
	SourceTypeManagement SourceType = "MANAGEMENT"
)

// SourceTypeFor derives source type from plugin naming convention.
// Params: check plugin name.
// Returns: MANAGEMENT for management plugins, HOST otherwise.
func SourceTypeFor(name CheckPluginName) SourceType {
	if name.IsManagement() {
		return SourceTypeManagement
	}
	return SourceTypeHost
}

// HostKey identifies parsed data of one host and source type.
// Params: host name and source type.
// Returns: provider lookup key.
type HostKey struct {
	Hostname   HostName
	SourceType SourceType
}

// String renders key for logs.
// Params: none.
// Returns: "host/TYPE".
func (k HostKey) String() string {
	return string(k.Hostname) + "/" + string(k.SourceType)
}

// ServiceID identifies a check instance on one host.
// Params: plugin name and optional item.
// Returns: value-store and registry key.
type ServiceID struct {
	Plugin CheckPluginName
	Item   string
}

// String renders "plugin" or "plugin:item".
// Params: none.
// Returns: id text.
func (id ServiceID) String() string {
	if id.Item == "" {
		return string(id.Plugin)
	}
	return string(id.Plugin) + ":" + id.Item
}

// ServiceOrigin tells where a service definition comes from.
type ServiceOrigin string

const (
	// OriginDiscovered marks services from autochecks.
	OriginDiscovered ServiceOrigin = "discovered"
	// OriginStatic marks services from static configuration.
	OriginStatic ServiceOrigin = "static"
)

// ConfiguredService is one check instance configured for a host.
// Params: plugin, item, description, labels, enforcement flag, origin and raw
// configured parameters (decoded TOML/YAML, may carry deferred markers).
// Returns: immutable per-cycle service definition.
type ConfiguredService struct {
	CheckPluginName CheckPluginName
	Item            string
	Description     ServiceName
	Labels          map[string]string
	IsEnforced      bool
	Origin          ServiceOrigin
	Parameters      map[string]any
}

// ID returns service identity.
// Params: none.
// Returns: plugin/item pair.
func (s ConfiguredService) ID() ServiceID {
	return ServiceID{Plugin: s.CheckPluginName, Item: s.Item}
}
