package checking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"checkengine/internal/domain"
	"checkengine/internal/fatal"
	"checkengine/internal/logging"
	"checkengine/internal/params"
	"checkengine/internal/sections"
)

// Request is everything needed to check one service of one host or cluster.
type Request struct {
	Host    domain.HostName
	Service domain.ConfiguredService
	// Plugin is nil when the service references an unregistered plugin.
	Plugin *Plugin
	Broker sections.Broker
	// Nodes lists all cluster nodes; empty for single hosts.
	Nodes     []domain.HostName
	IsCluster bool
	// EffectiveHost maps a node to the host its service belongs to; nil uses all nodes.
	EffectiveHost func(node domain.HostName) domain.HostName
	// SourceType overrides the source type derived from the plugin name.
	SourceType *domain.SourceType
	// Params lazily computes final check parameters.
	Params func() (params.Map, error)
}

// Assembler turns a request into an aggregated result, isolating plugin crashes.
type Assembler struct {
	crash  *CrashReporter
	debug  bool
	logger *slog.Logger
}

// NewAssembler builds assembler.
// Params: crash reporter, debug switch (crashes propagate) and logger.
// Returns: assembler.
func NewAssembler(crash *CrashReporter, debugMode bool, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.Discard()
	}
	if crash == nil {
		crash = NewCrashReporter("", nil, logger)
	}
	return &Assembler{crash: crash, debug: debugMode, logger: logger}
}

// panicError carries a recovered panic value with its stack.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// GetAggregatedResult checks one service.
// Params: context and request.
// Returns: aggregated result, or error for timeouts, contract violations,
// configuration errors and (debug only) plugin failures.
func (a *Assembler) GetAggregatedResult(ctx context.Context, req Request) (domain.AggregatedResult, error) {
	if req.Plugin == nil {
		return domain.AggregatedResult{
			Service:      req.Service,
			DataReceived: true,
			Result:       domain.CheckNotImplemented(),
		}, nil
	}

	sourceType := domain.SourceTypeFor(req.Plugin.Name)
	if req.SourceType != nil {
		sourceType = *req.SourceType
	}

	args := Args{Item: req.Service.Item}
	var keys []domain.HostKey
	if req.IsCluster {
		keys = nodeKeys(req, sourceType)
		args.NodeSections = sections.ClusterKwargs(req.Broker, keys, req.Plugin.Sections)
		if args.NodeSections == nil {
			return domain.AggregatedResult{
				Service: req.Service,
				Result:  domain.ClusterReceivedNoData(hostnames(keys)),
			}, nil
		}
	} else {
		key := domain.HostKey{Hostname: req.Host, SourceType: sourceType}
		keys = []domain.HostKey{key}
		args.Sections = sections.SectionKwargs(req.Broker, key, req.Plugin.Sections)
		if args.Sections == nil {
			return domain.AggregatedResult{
				Service: req.Service,
				Result:  domain.ReceivedNoData(),
			}, nil
		}
	}

	result, err := a.invoke(ctx, req, args)
	if err != nil {
		if fatal.Is(err) {
			return domain.AggregatedResult{}, err
		}
		var crashed *panicError
		isPanic := errors.As(err, &crashed)
		if a.debug {
			if isPanic {
				panic(crashed.value)
			}
			return domain.AggregatedResult{}, err
		}
		report := CrashReport{
			Host:       string(req.Host),
			Service:    string(req.Service.Description),
			Plugin:     string(req.Plugin.Name),
			Item:       req.Service.Item,
			Parameters: req.Service.Parameters,
			Error:      err.Error(),
			Panic:      isPanic,
		}
		if isPanic {
			report.Stack = string(crashed.stack)
		}
		result = crashResult(a.crash.Report(report))
	}

	return domain.AggregatedResult{
		Service:      req.Service,
		DataReceived: true,
		Result:       result,
		CacheInfo:    sections.CacheInfo(req.Broker, keys, req.Plugin.Sections),
	}, nil
}

// invoke resolves parameters and runs the check, converting panics to errors.
func (a *Assembler) invoke(ctx context.Context, req Request, args Args) (result domain.ServiceCheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()

	if req.Params != nil {
		resolved, err := req.Params()
		if err != nil {
			return domain.ServiceCheckResult{}, err
		}
		args.Params = resolved
	}
	return req.Plugin.Function(ctx, req.Host, args)
}

// nodeKeys selects node host keys whose service belongs to the cluster.
// Falls back to all nodes when none does.
func nodeKeys(req Request, sourceType domain.SourceType) []domain.HostKey {
	all := make([]domain.HostKey, 0, len(req.Nodes))
	own := make([]domain.HostKey, 0, len(req.Nodes))
	for _, node := range req.Nodes {
		key := domain.HostKey{Hostname: node, SourceType: sourceType}
		all = append(all, key)
		if req.EffectiveHost != nil && req.EffectiveHost(node) == req.Host {
			own = append(own, key)
		}
	}
	if len(own) == 0 {
		return all
	}
	return own
}

func hostnames(keys []domain.HostKey) []domain.HostName {
	out := make([]domain.HostName, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.Hostname)
	}
	return out
}
