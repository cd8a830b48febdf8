package checkers

import (
	"context"

	"checkengine/internal/domain"
	"checkengine/internal/hosts"
	"checkengine/internal/params"
	"checkengine/internal/plugin"
	"checkengine/internal/prediction"
)

// ComputeFinalCheckParameters merges plugin defaults with configured parameters
// and resolves deferred markers against the host context.
// Params: context, host, service, its plugin, host cache and prediction engine (may be nil).
// Returns: final parameters or configuration error.
func ComputeFinalCheckParameters(
	ctx context.Context,
	host domain.HostName,
	service domain.ConfiguredService,
	p plugin.CheckPlugin,
	hostCache *hosts.Cache,
	predictions *prediction.Engine,
) (params.Map, error) {
	merged := make(params.Map, len(p.CheckDefaultParameters)+len(service.Parameters))
	for key, value := range p.CheckDefaultParameters {
		merged[key] = value
	}
	for key, value := range params.MapFromAny(service.Parameters) {
		merged[key] = value
	}
	if p.Name == params.MultiMetricPlugin {
		merged = params.InjectReferenceMetrics(merged)
	}
	if !params.NeedsPostprocessing(merged) {
		return merged, nil
	}

	cfg := params.Config{
		HostName:    string(host),
		ServiceName: string(service.Description),
		OnlyFrom: func() params.Value {
			return hostCache.OnlyFrom(host)
		},
		ServiceLevel: func() int {
			return hostCache.ServiceLevel(host)
		},
	}
	if predictions != nil {
		cfg.Prediction = func() params.Predictor {
			return predictions.NewSession(ctx, host, service.Description)
		}
	}
	return params.PostprocessMap(merged, cfg)
}
