package checkers

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"checkengine/internal/agent"
	"checkengine/internal/checking"
	"checkengine/internal/domain"
	"checkengine/internal/sections"
)

// Fetched is the parse outcome of one host key.
type Fetched struct {
	Key       domain.HostKey
	FetchedAt time.Time
	Sections  domain.HostSections
	Err       error
}

// ParseRawData parses fetched payloads into host sections.
// Piggybacked blocks become HOST data of the foreign host, appended after its own data.
// Params: raw payloads (at most one per host key is expected).
// Returns: parse outcomes sorted by host key.
func ParseRawData(raw []domain.RawHostData) []Fetched {
	byKey := make(map[domain.HostKey]*Fetched, len(raw))
	var piggyback []Fetched

	for _, data := range raw {
		f := Fetched{Key: data.Key(), FetchedAt: data.FetchedAt()}
		if f.Key.SourceType == "" {
			f.Key.SourceType = domain.SourceTypeHost
		}
		switch {
		case data.Error != "":
			f.Err = errors.New(data.Error)
		default:
			parsed, err := agent.Parse([]byte(data.Payload), f.FetchedAt)
			if err != nil {
				f.Err = fmt.Errorf("parse agent output: %w", err)
				break
			}
			f.Sections = parsed
			piggyback = append(piggyback, piggybackedOf(parsed, f.FetchedAt)...)
		}
		merge(byKey, f)
	}
	for _, f := range piggyback {
		merge(byKey, f)
	}

	out := make([]Fetched, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Hostname != out[j].Key.Hostname {
			return out[i].Key.Hostname < out[j].Key.Hostname
		}
		return out[i].Key.SourceType < out[j].Key.SourceType
	})
	return out
}

func piggybackedOf(parsed domain.HostSections, fetchedAt time.Time) []Fetched {
	hosts := make([]domain.HostName, 0, len(parsed.Piggybacked))
	for host := range parsed.Piggybacked {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i] < hosts[j] })

	out := make([]Fetched, 0, len(hosts))
	for _, host := range hosts {
		f := Fetched{
			Key:       domain.HostKey{Hostname: host, SourceType: domain.SourceTypeHost},
			FetchedAt: fetchedAt,
		}
		sections, err := agent.Parse([]byte(strings.Join(parsed.Piggybacked[host], "\n")), fetchedAt)
		if err != nil {
			f.Err = fmt.Errorf("parse piggyback data: %w", err)
		} else {
			sections.Piggybacked = nil
			f.Sections = sections
		}
		out = append(out, f)
	}
	return out
}

func merge(byKey map[domain.HostKey]*Fetched, next Fetched) {
	current, ok := byKey[next.Key]
	if !ok {
		copied := next
		byKey[next.Key] = &copied
		return
	}
	if next.Err != nil {
		if current.Err == nil && current.Sections.Sections == nil {
			current.Err = next.Err
		}
		return
	}
	if current.Sections.Sections == nil {
		current.Sections = next.Sections
		current.Err = nil
		return
	}
	for name, rows := range next.Sections.Sections {
		current.Sections.Sections[name] = append(current.Sections.Sections[name], rows...)
	}
	for name, info := range next.Sections.CacheInfo {
		if _, exists := current.Sections.CacheInfo[name]; !exists {
			current.Sections.CacheInfo[name] = info
		}
	}
	if next.FetchedAt.After(current.FetchedAt) {
		current.FetchedAt = next.FetchedAt
	}
}

// BuildBroker creates section providers for every successfully parsed host key.
// Params: parse outcomes, section plugin lookup and logger.
// Returns: broker of one check cycle.
func BuildBroker(fetched []Fetched, lookup sections.PluginLookup, logger *slog.Logger) sections.Broker {
	broker := make(sections.Broker, len(fetched))
	for _, f := range fetched {
		if f.Err != nil {
			continue
		}
		broker[f.Key] = sections.NewProvider(f.Key, f.Sections, lookup, logger)
	}
	return broker
}

// sourceIdent names the data source of a host key in summaries.
func sourceIdent(key domain.HostKey) string {
	if key.SourceType == domain.SourceTypeManagement {
		return "mgmt"
	}
	return "agent"
}

// SummarizeFetch renders the data source state of one host key.
// Params: parse outcome and its provider (nil when parsing failed).
// Returns: CRIT on fetch errors, WARN per failed section parse, OK otherwise.
func SummarizeFetch(f Fetched, provider *sections.Provider) domain.ServiceCheckResult {
	prefix := "[" + sourceIdent(f.Key) + "] "
	if f.Err != nil {
		return domain.Submittable(domain.StateCrit, prefix+f.Err.Error()+domain.StateCrit.Marker(), nil)
	}
	results := []domain.Result{domain.NewResult(domain.StateOK, prefix+"Success")}
	if provider != nil {
		for _, perr := range provider.ParseErrors() {
			results = append(results, domain.NewResult(domain.StateWarn, fmt.Sprintf("Parsing of section %s failed", perr.Section)))
		}
	}
	return checking.AggregateResults(checking.Collected{Results: results})
}
