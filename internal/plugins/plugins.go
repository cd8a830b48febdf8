// Package plugins holds the builtin section and check plugins.
package plugins

import (
	"fmt"

	"checkengine/internal/plugin"
)

func sectionPlugins() []plugin.SectionPlugin {
	return []plugin.SectionPlugin{
		{Name: "uptime", Parse: parseUptime},
		{Name: "df", Parse: parseDF, HostLabel: dfHostLabels},
		{Name: "kernel", Parse: parseKernel},
	}
}

// Register adds the builtin plugins to registry.
// Params: plugin registry.
// Returns: registration error for duplicates or invalid definitions.
func Register(registry *plugin.Registry) error {
	for _, p := range sectionPlugins() {
		if err := registry.RegisterSection(p); err != nil {
			return fmt.Errorf("register section %s: %w", p.Name, err)
		}
	}
	checks := append(uptimePlugins(), dfPlugin(), kernelPlugin())
	for _, p := range checks {
		if err := registry.RegisterCheck(p); err != nil {
			return fmt.Errorf("register check %s: %w", p.Name, err)
		}
	}
	return nil
}

// NewRegistry returns a registry with the builtin plugins.
func NewRegistry() (*plugin.Registry, error) {
	registry := plugin.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
