package autochecks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"checkengine/internal/domain"
)

// Entry is one discovered service as persisted on disk.
type Entry struct {
	CheckPluginName string            `yaml:"check_plugin_name" json:"check_plugin_name"`
	Item            string            `yaml:"item,omitempty" json:"item,omitempty"`
	Parameters      map[string]any    `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	ServiceLabels   map[string]string `yaml:"service_labels,omitempty" json:"service_labels,omitempty"`
}

// ID returns service identity of entry.
func (e Entry) ID() domain.ServiceID {
	return domain.ServiceID{Plugin: domain.CheckPluginName(e.CheckPluginName), Item: e.Item}
}

type document struct {
	Services []Entry `yaml:"services"`
}

// Store reads and writes per-host autochecks files.
type Store struct {
	dir string
}

// NewStore creates store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(host domain.HostName) string {
	return filepath.Join(s.dir, string(host)+".yaml")
}

// Load returns discovered services of host.
// Params: host name.
// Returns: entries (nil when no file exists) or read/decode error.
func (s *Store) Load(host domain.HostName) ([]Entry, error) {
	if s == nil || s.dir == "" {
		return nil, nil
	}
	body, err := os.ReadFile(s.path(host))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read autochecks of %s: %w", host, err)
	}
	var doc document
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode autochecks of %s: %w", host, err)
	}
	return doc.Services, nil
}

// Save replaces discovered services of host atomically.
// Params: host name and entries (sorted by plugin and item on write).
// Returns: write error.
func (s *Store) Save(host domain.HostName, entries []Entry) error {
	if s == nil || s.dir == "" {
		return errors.New("autochecks directory is not configured")
	}
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CheckPluginName != sorted[j].CheckPluginName {
			return sorted[i].CheckPluginName < sorted[j].CheckPluginName
		}
		return sorted[i].Item < sorted[j].Item
	})

	body, err := yaml.Marshal(document{Services: sorted})
	if err != nil {
		return fmt.Errorf("encode autochecks of %s: %w", host, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create autochecks dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+string(host)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create autochecks temp file: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write autochecks of %s: %w", host, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close autochecks of %s: %w", host, err)
	}
	if err := os.Rename(tmp.Name(), s.path(host)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace autochecks of %s: %w", host, err)
	}
	return nil
}

// Describer renders the description of a service; false for unknown plugins.
type Describer func(plugin domain.CheckPluginName, item string) (domain.ServiceName, bool)

// ToServices converts entries to configured services.
// Unknown plugins keep a "plugin item" description so they surface as not implemented.
// Params: entries and description renderer.
// Returns: configured services.
func ToServices(entries []Entry, describe Describer) []domain.ConfiguredService {
	out := make([]domain.ConfiguredService, 0, len(entries))
	for _, e := range entries {
		name := domain.CheckPluginName(e.CheckPluginName)
		description, ok := describe(name, e.Item)
		if !ok {
			description = domain.ServiceName(e.ID().String())
		}
		out = append(out, domain.ConfiguredService{
			CheckPluginName: name,
			Item:            e.Item,
			Description:     description,
			Labels:          e.ServiceLabels,
			Origin:          domain.OriginDiscovered,
			Parameters:      e.Parameters,
		})
	}
	return out
}
