package cluster

import (
	"fmt"
	"iter"
	"math"
	"strings"

	"checkengine/internal/domain"
)

// Summarizer renders node results around one pivot node.
type Summarizer struct {
	nodes    NodeResults
	strategy strategy
	pivot    domain.HostName
}

// newSummarizer selects the pivot node.
// Params: node results (with at least one result) and mode strategy.
// Returns: summarizer.
func newSummarizer(nodes NodeResults, s strategy) *Summarizer {
	return &Summarizer{nodes: nodes, strategy: s, pivot: selectPivot(nodes, s)}
}

// Pivot returns the node whose results define the service state.
func (s *Summarizer) Pivot() domain.HostName {
	return s.pivot
}

// selectPivot picks the pivot node. A pinned preferred node with results wins;
// otherwise the preferred node wins among the selected nodes, else the smallest name.
func selectPivot(nodes NodeResults, s strategy) domain.HostName {
	if s.pinPreferred && len(nodes.Results[s.preferred]) > 0 {
		return s.preferred
	}

	candidates := make([]domain.HostName, 0, len(nodes.Results))
	states := make(map[domain.HostName]domain.State, len(nodes.Results))
	for node, results := range nodes.Results {
		if len(results) == 0 {
			continue
		}
		candidates = append(candidates, node)
		nodeStates := make([]domain.State, 0, len(results))
		for _, r := range results {
			nodeStates = append(nodeStates, r.State)
		}
		states[node] = domain.WorstState(nodeStates...)
	}

	var selected []domain.HostName
	if len(candidates) > 0 {
		all := make([]domain.State, 0, len(candidates))
		for _, node := range candidates {
			all = append(all, states[node])
		}
		want := s.selector(all...)
		for _, node := range candidates {
			if states[node] == want {
				selected = append(selected, node)
			}
		}
	}
	if len(selected) == 0 {
		for node := range nodes.Results {
			selected = append(selected, node)
		}
	}
	sortNodes(selected)
	for _, node := range selected {
		if node == s.preferred {
			return node
		}
	}
	return selected[0]
}

// secondaryNodes lists nodes other than the pivot that yielded results.
func (s *Summarizer) secondaryNodes() []domain.HostName {
	var out []domain.HostName
	for node, results := range s.nodes.Results {
		if node != s.pivot && len(results) > 0 {
			out = append(out, node)
		}
	}
	sortNodes(out)
	return out
}

// PrimaryResults yields the mode notice, the unpreferred-node penalty,
// the additional-nodes check and the pivot results.
func (s *Summarizer) PrimaryResults(yield func(domain.Output, error) bool) bool {
	notice := fmt.Sprintf("%s mode, active node: [%s]", s.strategy.label, s.pivot)
	if s.strategy.preferred != "" {
		notice += fmt.Sprintf(", preferred node: [%s]", s.strategy.preferred)
	}
	if !yield(domain.Notice(domain.StateOK, notice), nil) {
		return false
	}
	if s.strategy.preferred != "" && s.pivot != s.strategy.preferred {
		penalty := domain.Notice(s.strategy.unpreferredState, fmt.Sprintf("Preferred node [%s] is not active", s.strategy.preferred))
		if !yield(penalty, nil) {
			return false
		}
	}

	if secondary := s.secondaryNodes(); len(secondary) > 0 {
		labels := make([]string, 0, len(secondary))
		for _, node := range secondary {
			labels = append(labels, "["+string(node)+"]")
		}
		if !yield(domain.Notice(domain.StateOK, "Additional results from: "+strings.Join(labels, ", ")), nil) {
			return false
		}
		count := float64(len(secondary))
		state := levelsState(count, s.strategy.levels)
		text := fmt.Sprintf("Additional nodes: %d", len(secondary))
		if state != domain.StateOK {
			text += fmt.Sprintf(" (warn/crit at %s/%s)", renderLevel(s.strategy.levels[0]), renderLevel(s.strategy.levels[1]))
		}
		if !yield(domain.Notice(state, text), nil) {
			return false
		}
	}

	for _, r := range s.nodes.Results[s.pivot] {
		stripped := domain.Result{
			State:   r.State,
			Summary: domain.StripMarkers(r.Summary),
			Details: domain.StripMarkers(r.Details),
		}
		if !yield(stripped, nil) {
			return false
		}
	}
	return true
}

// SecondaryResults yields one OK notice per result of every other node.
func (s *Summarizer) SecondaryResults(yield func(domain.Output, error) bool) bool {
	for _, node := range s.secondaryNodes() {
		for _, r := range s.nodes.Results[node] {
			text := fmt.Sprintf("[%s]: %s%s", node, domain.StripMarkers(r.Details), r.State.Marker())
			if !yield(domain.Notice(domain.StateOK, text), nil) {
				return false
			}
		}
	}
	return true
}

// Metrics yields metrics of the metrics node, falling back to the pivot.
func (s *Summarizer) Metrics(metricsNode domain.HostName, yield func(domain.Output, error) bool) bool {
	node := s.pivot
	if metricsNode != "" && len(s.nodes.Metrics[metricsNode]) > 0 {
		node = metricsNode
	}
	metrics := s.nodes.Metrics[node]
	if len(metrics) == 0 {
		return true
	}
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.Name)
	}
	if !yield(domain.Notice(domain.StateOK, fmt.Sprintf("[%s] Metrics: %s", node, strings.Join(names, ", "))), nil) {
		return false
	}
	for _, m := range metrics {
		if !yield(m, nil) {
			return false
		}
	}
	return true
}

// All yields the complete cluster output in order.
func (s *Summarizer) All(metricsNode domain.HostName) iter.Seq2[domain.Output, error] {
	return func(yield func(domain.Output, error) bool) {
		_ = s.PrimaryResults(yield) &&
			s.SecondaryResults(yield) &&
			s.Metrics(metricsNode, yield)
	}
}

func levelsState(value float64, levels [2]float64) domain.State {
	switch {
	case value >= levels[1]:
		return domain.StateCrit
	case value >= levels[0]:
		return domain.StateWarn
	default:
		return domain.StateOK
	}
}

func renderLevel(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%g", v)
}

func joinComma(texts []string) string {
	return strings.Join(texts, ", ")
}
