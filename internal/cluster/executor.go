package cluster

import (
	"context"
	"sort"

	"checkengine/internal/checking"
	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/valuestore"
)

// NodeResults holds classified outputs per node; read-only once built.
type NodeResults struct {
	Results map[domain.HostName][]domain.Result
	Metrics map[domain.HostName][]domain.Metric
	Ignores map[domain.HostName][]domain.IgnoreResults
}

// HasResults reports whether any node yielded a result.
func (n NodeResults) HasResults() bool {
	for _, results := range n.Results {
		if len(results) > 0 {
			return true
		}
	}
	return false
}

// IgnoreError combines node ignore signals.
// Returns: nil when no node signalled.
func (n NodeResults) IgnoreError() error {
	nodes := make([]domain.HostName, 0, len(n.Ignores))
	messages := make(map[domain.HostName]string, len(n.Ignores))
	for node, ignores := range n.Ignores {
		if len(ignores) == 0 {
			continue
		}
		texts := make([]string, 0, len(ignores))
		for _, ignore := range ignores {
			texts = append(texts, ignore.Text)
		}
		nodes = append(nodes, node)
		messages[node] = joinComma(texts)
	}
	if len(nodes) == 0 {
		return nil
	}
	sortNodes(nodes)
	return &domain.IgnoreResultsError{Message: domain.JoinNodeMessages(nodes, messages), Nodes: nodes}
}

// NodeCheckExecutor runs a node check function once per node with data.
type NodeCheckExecutor struct {
	stores *valuestore.Manager
	id     domain.ServiceID
}

// NewNodeCheckExecutor builds executor for one service.
// Params: value store manager and service id (value stores are per node).
// Returns: executor.
func NewNodeCheckExecutor(stores *valuestore.Manager, id domain.ServiceID) *NodeCheckExecutor {
	return &NodeCheckExecutor{stores: stores, id: id}
}

// Run checks every node whose sections are not all absent, in sorted node order.
// Params: context, node check function, item, parameters and per-node sections.
// Returns: per-node classified outputs or first plugin/fatal error.
func (e *NodeCheckExecutor) Run(ctx context.Context, check plugin.CheckFunction, item string, p params.Map, sections plugin.NodeSections) (NodeResults, error) {
	out := NodeResults{
		Results: make(map[domain.HostName][]domain.Result),
		Metrics: make(map[domain.HostName][]domain.Metric),
		Ignores: make(map[domain.HostName][]domain.IgnoreResults),
	}

	for _, node := range nodesOf(sections) {
		nodeSections := make(plugin.Sections, len(sections))
		present := false
		for name, perNode := range sections {
			data := perNode[node]
			nodeSections[name] = data
			if data != nil {
				present = true
			}
		}
		if !present {
			continue
		}

		err := e.stores.Namespace(ctx, node, e.id, func(vs *valuestore.Store) error {
			collected, err := checking.ConsumeCheckResults(ctx, check(plugin.CheckArgs{
				Item:       item,
				Params:     p,
				Sections:   nodeSections,
				ValueStore: vs,
			}))
			if err != nil {
				return err
			}
			out.Results[node] = collected.Results
			out.Metrics[node] = collected.Metrics
			out.Ignores[node] = collected.Ignores
			return nil
		})
		if err != nil {
			return NodeResults{}, err
		}
	}
	return out, nil
}

func nodesOf(sections plugin.NodeSections) []domain.HostName {
	seen := make(map[domain.HostName]struct{})
	for _, perNode := range sections {
		for node := range perNode {
			seen[node] = struct{}{}
		}
	}
	nodes := make([]domain.HostName, 0, len(seen))
	for node := range seen {
		nodes = append(nodes, node)
	}
	sortNodes(nodes)
	return nodes
}

func sortNodes(nodes []domain.HostName) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
}
