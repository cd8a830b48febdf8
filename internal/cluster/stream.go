package cluster

import (
	"context"
	"iter"

	"checkengine/internal/checking"
	"checkengine/internal/domain"
	"checkengine/internal/plugin"
	"checkengine/internal/valuestore"
)

// NativeUnsupported is the text of native mode without a cluster check function.
const NativeUnsupported = "This service does not implement a native cluster mode. Please change your configuration (Clustered services), to use any other cluster mode."

// Stream builds the cluster check stream for one plugin.
// Params: value store manager, cluster settings and plugin.
// Returns: stream consuming per-node sections.
func Stream(stores *valuestore.Manager, cfg Config, p plugin.CheckPlugin) checking.Stream {
	if cfg.Mode == ModeNative || cfg.Mode == "" {
		return nativeStream(p)
	}
	s := strategyFor(cfg)
	return func(ctx context.Context, _ domain.HostName, args checking.Args, _ *valuestore.Store) iter.Seq2[domain.Output, error] {
		return func(yield func(domain.Output, error) bool) {
			executor := NewNodeCheckExecutor(stores, domain.ServiceID{Plugin: p.Name, Item: args.Item})
			nodes, err := executor.Run(ctx, p.Check, args.Item, args.Params, args.NodeSections)
			if err != nil {
				yield(nil, err)
				return
			}
			if err := nodes.IgnoreError(); err != nil {
				yield(nil, err)
				return
			}
			if !nodes.HasResults() {
				return
			}
			for out, err := range newSummarizer(nodes, s).All(cfg.MetricsNode) {
				if !yield(out, err) {
					return
				}
			}
		}
	}
}

func nativeStream(p plugin.CheckPlugin) checking.Stream {
	return func(_ context.Context, _ domain.HostName, args checking.Args, vs *valuestore.Store) iter.Seq2[domain.Output, error] {
		if p.ClusterCheck == nil {
			return func(yield func(domain.Output, error) bool) {
				yield(domain.NewResult(domain.StateUnknown, NativeUnsupported), nil)
			}
		}
		return p.ClusterCheck(plugin.ClusterCheckArgs{
			Item:       args.Item,
			Params:     args.Params,
			Sections:   args.NodeSections,
			ValueStore: vs,
		})
	}
}
