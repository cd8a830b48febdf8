package plugin

import (
	"fmt"
	"iter"
	"strings"

	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/valuestore"
)

// Sections maps parsed section names to parsed data; a nil value is an absent section.
type Sections map[domain.ParsedSectionName]any

// NodeSections maps parsed section names to per-node parsed data of a cluster.
type NodeSections map[domain.ParsedSectionName]map[domain.HostName]any

// CheckArgs is the input of one check function invocation.
// Params: item (empty when the plugin has none), resolved parameters, sections and value store.
// Returns: check function input.
type CheckArgs struct {
	Item       string
	Params     params.Map
	Sections   Sections
	ValueStore *valuestore.Store
}

// ClusterCheckArgs is the input of a native cluster check function.
// Params: item, resolved parameters, per-node sections and value store.
// Returns: cluster check function input.
type ClusterCheckArgs struct {
	Item       string
	Params     params.Map
	Sections   NodeSections
	ValueStore *valuestore.Store
}

// CheckFunction yields results and metrics; an error value ends the stream.
type CheckFunction func(CheckArgs) iter.Seq2[domain.Output, error]

// ClusterCheckFunction is the native cluster variant of CheckFunction.
type ClusterCheckFunction func(ClusterCheckArgs) iter.Seq2[domain.Output, error]

// Service is one discovered service.
type Service struct {
	Item       string
	Parameters params.Map
	Labels     map[string]string
}

// DiscoveryFunction yields services for the given sections.
type DiscoveryFunction func(params params.Map, sections Sections) iter.Seq2[Service, error]

// HostLabel is one label derived from a section.
type HostLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HostLabelFunction yields host labels for one parsed section.
type HostLabelFunction func(params params.Map, section any) iter.Seq2[HostLabel, error]

// ParseFunction turns raw rows into plugin data; nil means the section is absent.
type ParseFunction func(rows [][]string) (any, error)

// CheckPlugin bundles check, discovery and cluster functions of one plugin.
type CheckPlugin struct {
	Name                       domain.CheckPluginName
	Sections                   []domain.ParsedSectionName
	ServiceName                string
	Check                      CheckFunction
	ClusterCheck               ClusterCheckFunction
	Discovery                  DiscoveryFunction
	DiscoveryDefaultParameters params.Map
	DiscoveryRuleset           string
	CheckDefaultParameters     params.Map
	CheckRuleset               string
}

// HasItem reports whether services of plugin carry an item.
func (p CheckPlugin) HasItem() bool {
	return strings.Contains(p.ServiceName, "%s")
}

// TakesParameters reports whether check function receives parameters.
func (p CheckPlugin) TakesParameters() bool {
	return p.CheckDefaultParameters != nil || p.CheckRuleset != ""
}

// Describe renders service description for item.
// Params: item (ignored for itemless plugins).
// Returns: service name.
func (p CheckPlugin) Describe(item string) domain.ServiceName {
	if !p.HasItem() {
		return domain.ServiceName(p.ServiceName)
	}
	return domain.ServiceName(strings.Replace(p.ServiceName, "%s", item, 1))
}

// Validate checks plugin definition.
func (p CheckPlugin) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("check plugin without name")
	}
	if p.Check == nil {
		return fmt.Errorf("check plugin %q has no check function", p.Name)
	}
	if len(p.Sections) == 0 {
		return fmt.Errorf("check plugin %q subscribes to no sections", p.Name)
	}
	if strings.Count(p.ServiceName, "%s") > 1 {
		return fmt.Errorf("check plugin %q service name has more than one item placeholder", p.Name)
	}
	return nil
}

// SectionPlugin parses one raw section.
type SectionPlugin struct {
	Name                       domain.SectionName
	ParsedSectionName          domain.ParsedSectionName
	Parse                      ParseFunction
	Supersedes                 []domain.SectionName
	HostLabel                  HostLabelFunction
	HostLabelDefaultParameters params.Map
}

// TrivialSectionPlugin parses raw rows unchanged under the raw section name.
// Params: raw section name.
// Returns: section plugin used when none is registered.
func TrivialSectionPlugin(name domain.SectionName) SectionPlugin {
	return SectionPlugin{
		Name:              name,
		ParsedSectionName: domain.ParsedSectionName(name),
		Parse: func(rows [][]string) (any, error) {
			return rows, nil
		},
	}
}

// NoHostLabels is the default host label function.
func NoHostLabels(params.Map, any) iter.Seq2[HostLabel, error] {
	return func(func(HostLabel, error) bool) {}
}

// Yield emits outputs in order and reports whether the consumer wants more.
func Yield(yield func(domain.Output, error) bool, outputs ...domain.Output) bool {
	for _, out := range outputs {
		if !yield(out, nil) {
			return false
		}
	}
	return true
}
