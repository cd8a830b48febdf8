package domain

import (
	"fmt"
	"strings"
)

// ServiceCheckResult is the normalized outcome of one service check.
// Params: state, rendered output, metrics and submission flag.
// Returns: result consumed by submitters.
type ServiceCheckResult struct {
	State       State
	Output      string
	Metrics     []Metric
	Submittable bool
}

// Submittable builds an authoritative result.
// Params: state, output text and metrics.
// Returns: submittable result.
func Submittable(state State, output string, metrics []Metric) ServiceCheckResult {
	return ServiceCheckResult{State: state, Output: output, Metrics: metrics, Submittable: true}
}

// Unsubmittable builds an advisory result that must not reach history.
// Params: state, output text and metrics.
// Returns: unsubmittable result.
func Unsubmittable(state State, output string, metrics []Metric) ServiceCheckResult {
	return ServiceCheckResult{State: state, Output: output, Metrics: metrics}
}

// ItemNotFound is the outcome of a check that yielded nothing.
// Params: none.
// Returns: UNKNOWN submittable result.
func ItemNotFound() ServiceCheckResult {
	return Submittable(StateUnknown, "Item not found in monitoring data", nil)
}

// ReceivedNoData is the outcome when no section feeds the service.
// Params: none.
// Returns: UNKNOWN unsubmittable result.
func ReceivedNoData() ServiceCheckResult {
	return Unsubmittable(StateUnknown, "Check plugin received no monitoring data", nil)
}

// ClusterReceivedNoData is the cluster variant of ReceivedNoData.
// Params: nodes that were asked for data.
// Returns: UNKNOWN unsubmittable result naming the nodes.
func ClusterReceivedNoData(nodes []HostName) ServiceCheckResult {
	hint := "no nodes configured"
	if len(nodes) > 0 {
		names := make([]string, 0, len(nodes))
		for _, node := range nodes {
			names = append(names, string(node))
		}
		hint = "configured nodes: " + strings.Join(names, ", ")
	}
	return Unsubmittable(StateUnknown, fmt.Sprintf("Clustered service received no monitoring data (%s)", hint), nil)
}

// CheckNotImplemented is the outcome for services without registered plugin.
// Params: none.
// Returns: UNKNOWN submittable result.
func CheckNotImplemented() ServiceCheckResult {
	return Submittable(StateUnknown, "Check plugin not implemented", nil)
}

// Summary returns first output line.
// Params: none.
// Returns: headline text.
func (r ServiceCheckResult) Summary() string {
	return firstLine(r.Output)
}

// CacheInfo describes freshness of cached section data.
// Params: unix time of caching and validity interval in seconds.
// Returns: cache metadata.
type CacheInfo struct {
	CachedAt int64 `json:"cached_at"`
	Interval int64 `json:"interval"`
}

// AggregatedResult is one service outcome with data-availability metadata.
// Params: service, data flag, result and optional cache info.
// Returns: record handed to submitters.
type AggregatedResult struct {
	Service      ConfiguredService
	DataReceived bool
	Result       ServiceCheckResult
	CacheInfo    *CacheInfo
}

// HostSections holds raw sections of one host key as produced by the agent parser.
// Params: rows per section, cache info and piggyback payloads.
// Returns: parser output consumed by section providers.
type HostSections struct {
	Sections    map[SectionName][][]string
	CacheInfo   map[SectionName]CacheInfo
	Piggybacked map[HostName][]string
}
