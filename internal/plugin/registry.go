package plugin

import (
	"fmt"
	"sort"
	"sync"

	"checkengine/internal/domain"
)

// Registry holds registered section and check plugins.
type Registry struct {
	mu       sync.RWMutex
	checks   map[domain.CheckPluginName]CheckPlugin
	sections map[domain.SectionName]SectionPlugin
}

// NewRegistry creates empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checks:   make(map[domain.CheckPluginName]CheckPlugin),
		sections: make(map[domain.SectionName]SectionPlugin),
	}
}

// RegisterCheck adds check plugin.
// Params: plugin definition.
// Returns: validation or duplicate error.
func (r *Registry) RegisterCheck(p CheckPlugin) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[p.Name]; exists {
		return fmt.Errorf("duplicate check plugin %q", p.Name)
	}
	r.checks[p.Name] = p
	return nil
}

// RegisterSection adds section plugin.
// Params: plugin definition; empty parsed name defaults to raw name.
// Returns: duplicate error.
func (r *Registry) RegisterSection(p SectionPlugin) error {
	if p.Name == "" || p.Parse == nil {
		return fmt.Errorf("section plugin %q needs a name and a parse function", p.Name)
	}
	if p.ParsedSectionName == "" {
		p.ParsedSectionName = domain.ParsedSectionName(p.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sections[p.Name]; exists {
		return fmt.Errorf("duplicate section plugin %q", p.Name)
	}
	r.sections[p.Name] = p
	return nil
}

// Check returns check plugin by name.
func (r *Registry) Check(name domain.CheckPluginName) (CheckPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.checks[name]
	return p, ok
}

// Section returns section plugin by raw name.
func (r *Registry) Section(name domain.SectionName) (SectionPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sections[name]
	return p, ok
}

// Checks returns all check plugins sorted by name.
func (r *Registry) Checks() []CheckPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CheckPlugin, 0, len(r.checks))
	for _, p := range r.checks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sections returns all section plugins sorted by raw name.
func (r *Registry) Sections() []SectionPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SectionPlugin, 0, len(r.sections))
	for _, p := range r.sections {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
