package sections

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"checkengine/internal/domain"
	"checkengine/internal/logging"
	"checkengine/internal/plugin"
)

// PluginLookup returns the section plugin for a raw section (trivial when unregistered).
type PluginLookup func(domain.SectionName) plugin.SectionPlugin

// ParseError records a failed parse function.
type ParseError struct {
	Section domain.SectionName
	Err     error
}

// Error renders parse failure.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing of section %s failed: %v", e.Section, e.Err)
}

// Unwrap returns underlying parse error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

type parsedEntry struct {
	data any
	raw  domain.SectionName
}

// Provider resolves parsed sections of one host key.
// Each raw section is parsed at most once; superseded sections are never parsed.
type Provider struct {
	key    domain.HostKey
	raw    domain.HostSections
	lookup PluginLookup
	logger *slog.Logger

	mu          sync.Mutex
	sources     map[domain.ParsedSectionName]domain.SectionName
	parsed      map[domain.ParsedSectionName]parsedEntry
	consumed    map[domain.SectionName]struct{}
	parseErrors []*ParseError
}

// NewProvider builds provider for raw sections of one host key.
// Params: host key, raw sections, plugin lookup and logger.
// Returns: provider.
func NewProvider(key domain.HostKey, raw domain.HostSections, lookup PluginLookup, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Provider{
		key:      key,
		raw:      raw,
		lookup:   lookup,
		logger:   logger,
		parsed:   make(map[domain.ParsedSectionName]parsedEntry),
		consumed: make(map[domain.SectionName]struct{}),
	}
	p.sources = p.resolveSources()
	return p
}

// resolveSources maps parsed names to the raw section producing them.
// Superseded raw sections are dropped; ties go to the smallest raw name.
func (p *Provider) resolveSources() map[domain.ParsedSectionName]domain.SectionName {
	names := make([]domain.SectionName, 0, len(p.raw.Sections))
	for name := range p.raw.Sections {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	superseded := make(map[domain.SectionName]struct{})
	for _, name := range names {
		for _, other := range p.lookup(name).Supersedes {
			superseded[other] = struct{}{}
		}
	}

	out := make(map[domain.ParsedSectionName]domain.SectionName, len(names))
	for _, name := range names {
		if _, dropped := superseded[name]; dropped {
			continue
		}
		parsedName := p.lookup(name).ParsedSectionName
		if _, exists := out[parsedName]; exists {
			continue
		}
		out[parsedName] = name
	}
	return out
}

// Key returns the host key.
func (p *Provider) Key() domain.HostKey {
	return p.key
}

// Source returns the raw section producing a parsed section.
// Params: parsed section name.
// Returns: raw section name and false when no raw section feeds it.
func (p *Provider) Source(name domain.ParsedSectionName) (domain.SectionName, bool) {
	raw, ok := p.sources[name]
	return raw, ok
}

// Parsed returns parsed data of one section.
// Params: parsed section name.
// Returns: data or nil when absent or failed.
func (p *Provider) Parsed(name domain.ParsedSectionName) any {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.parsed[name]; ok {
		if entry.data != nil {
			p.consumed[entry.raw] = struct{}{}
		}
		return entry.data
	}

	rawName, ok := p.sources[name]
	if !ok {
		return nil
	}
	data, err := p.parse(rawName)
	if err != nil {
		parseErr := &ParseError{Section: rawName, Err: err}
		p.parseErrors = append(p.parseErrors, parseErr)
		p.logger.Warn("section parse failed", "host", p.key.String(), "section", string(rawName), "error", err.Error())
	}
	p.parsed[name] = parsedEntry{data: data, raw: rawName}
	if data != nil {
		p.consumed[rawName] = struct{}{}
	}
	return data
}

func (p *Provider) parse(rawName domain.SectionName) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	section := p.lookup(rawName)
	data, err = section.Parse(p.raw.Sections[rawName])
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Available lists parsed section names that yield data, parsing them on the way.
func (p *Provider) Available() []domain.ParsedSectionName {
	names := make([]domain.ParsedSectionName, 0, len(p.sources))
	for name := range p.sources {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	out := names[:0]
	for _, name := range names {
		if p.Parsed(name) != nil {
			out = append(out, name)
		}
	}
	return out
}

// ParseErrors returns recorded parse failures.
func (p *Provider) ParseErrors() []*ParseError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*ParseError(nil), p.parseErrors...)
}

// CacheInfo aggregates freshness over the consumed raw sections behind names.
// Params: parsed section names of one plugin.
// Returns: (min cached_at, max interval) and false when none of them was cached.
func (p *Provider) CacheInfo(names []domain.ParsedSectionName) (domain.CacheInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		out   domain.CacheInfo
		found bool
	)
	for _, name := range names {
		entry, ok := p.parsed[name]
		if !ok || entry.data == nil {
			continue
		}
		if _, used := p.consumed[entry.raw]; !used {
			continue
		}
		info, ok := p.raw.CacheInfo[entry.raw]
		if !ok {
			continue
		}
		out, found = mergeCacheInfo(out, found, info), true
	}
	return out, found
}

func mergeCacheInfo(acc domain.CacheInfo, initialized bool, next domain.CacheInfo) domain.CacheInfo {
	if !initialized {
		return next
	}
	return domain.CacheInfo{
		CachedAt: min(acc.CachedAt, next.CachedAt),
		Interval: max(acc.Interval, next.Interval),
	}
}
