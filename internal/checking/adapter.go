package checking

import (
	"context"
	"iter"

	"checkengine/internal/domain"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/valuestore"
)

// Args is the engine-side input of a wrapped check function.
// Sections is set for single hosts, NodeSections for clusters.
type Args struct {
	Item         string
	Params       params.Map
	Sections     plugin.Sections
	NodeSections plugin.NodeSections
}

// CheckFunction is a check reduced to one service result.
type CheckFunction func(ctx context.Context, host domain.HostName, args Args) (domain.ServiceCheckResult, error)

// Plugin is a check plugin wrapped for the engine.
type Plugin struct {
	Name     domain.CheckPluginName
	Sections []domain.ParsedSectionName
	Function CheckFunction
	Cluster  bool
}

// Stream builds the raw output stream of one invocation from a value store.
type Stream func(ctx context.Context, host domain.HostName, args Args, vs *valuestore.Store) iter.Seq2[domain.Output, error]

// HostStream adapts a plugin check function to Stream.
// Params: plugin check function.
// Returns: stream builder passing single-host sections.
func HostStream(check plugin.CheckFunction) Stream {
	return func(_ context.Context, _ domain.HostName, args Args, vs *valuestore.Store) iter.Seq2[domain.Output, error] {
		return check(plugin.CheckArgs{
			Item:       args.Item,
			Params:     args.Params,
			Sections:   args.Sections,
			ValueStore: vs,
		})
	}
}

// WrapCheckFunction scopes a stream to the value store of (host, service) and aggregates it.
// Params: value store manager, plugin name and stream builder.
// Returns: engine check function.
func WrapCheckFunction(stores *valuestore.Manager, name domain.CheckPluginName, stream Stream) CheckFunction {
	return func(ctx context.Context, host domain.HostName, args Args) (domain.ServiceCheckResult, error) {
		id := domain.ServiceID{Plugin: name, Item: args.Item}
		var result domain.ServiceCheckResult
		err := stores.Namespace(ctx, host, id, func(vs *valuestore.Store) error {
			collected, err := ConsumeCheckResults(ctx, stream(ctx, host, args, vs))
			if err != nil {
				return err
			}
			result = AggregateResults(collected)
			return nil
		})
		if err != nil {
			return domain.ServiceCheckResult{}, err
		}
		return result, nil
	}
}
