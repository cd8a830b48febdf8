package params

import (
	"fmt"

	"checkengine/internal/domain"
)

const (
	// MarkerTag is the first element of a deferred parameter triple.
	MarkerTag = "cmk_postprocessed"
	// InjectedKey is the legacy mapping key replaced by the prediction context.
	InjectedKey = "__injected__"
)

// Kind selects how a deferred value is resolved.
type Kind string

const (
	// KindHostName resolves to the checked host name.
	KindHostName Kind = "host_name"
	// KindServiceName resolves to the service description.
	KindServiceName Kind = "service_name"
	// KindServiceLevel resolves to the effective service level.
	KindServiceLevel Kind = "service_level"
	// KindOnlyFrom resolves to the allowed agent source addresses.
	KindOnlyFrom Kind = "only_from"
	// KindPredictiveLevels resolves to ("predictive", (metric, ref, levels)).
	KindPredictiveLevels Kind = "predictive_levels"
)

// Known reports whether kind is resolvable.
// Params: none.
// Returns: true for the five supported kinds.
func (k Kind) Known() bool {
	switch k {
	case KindHostName, KindServiceName, KindServiceLevel, KindOnlyFrom, KindPredictiveLevels:
		return true
	default:
		return false
	}
}

// Deferred is a parameter resolved against live context at check time.
type Deferred struct {
	Kind    Kind
	Payload Value
}

func (Deferred) isValue() {}

// Marker builds a deferred value.
// Params: kind and payload.
// Returns: deferred value.
func Marker(kind Kind, payload Value) Deferred {
	if payload == nil {
		payload = Null
	}
	return Deferred{Kind: kind, Payload: payload}
}

// Predictor computes predictive levels for one check invocation.
// Params: implemented by prediction sessions.
// Returns: reference value and levels per metric.
type Predictor interface {
	PredictiveLevels(metric string, direction Direction, p PredictiveParameters) (*float64, *[2]float64, error)
	Injected() (Value, error)
}

// Config exposes lazily evaluated context for resolution.
// Params: accessors for only-from, prediction, service level and names.
// Returns: resolution context.
type Config struct {
	OnlyFrom     func() Value
	Prediction   func() Predictor
	ServiceLevel func() int
	HostName     string
	ServiceName  string
}

// NeedsPostprocessing reports whether tree contains deferred markers.
// Params: parameter tree.
// Returns: true when any marker or legacy injected key exists.
func NeedsPostprocessing(v Value) bool {
	switch t := v.(type) {
	case Deferred:
		return true
	case Tuple:
		return anyNeedsPostprocessing(t)
	case List:
		return anyNeedsPostprocessing(t)
	case Map:
		if _, ok := t[InjectedKey]; ok {
			return true
		}
		for _, item := range t {
			if NeedsPostprocessing(item) {
				return true
			}
		}
	}
	return false
}

func anyNeedsPostprocessing(items []Value) bool {
	for _, item := range items {
		if NeedsPostprocessing(item) {
			return true
		}
	}
	return false
}

// Postprocess resolves all deferred markers of tree.
// The prediction context is created at most once per call.
// Params: parameter tree and resolution context.
// Returns: resolved copy of tree or configuration error.
func Postprocess(v Value, cfg Config) (Value, error) {
	r := &resolver{cfg: cfg}
	return r.resolve(v)
}

// PostprocessMap resolves every value of a parameter map.
// Params: parameter map and resolution context.
// Returns: resolved map copy.
func PostprocessMap(m Map, cfg Config) (Map, error) {
	resolved, err := Postprocess(m, cfg)
	if err != nil {
		return nil, err
	}
	out, _ := resolved.(Map)
	return out, nil
}

type resolver struct {
	cfg       Config
	predictor Predictor
}

func (r *resolver) prediction() (Predictor, error) {
	if r.predictor == nil {
		if r.cfg.Prediction == nil {
			return nil, &domain.ConfigurationError{Msg: "predictive levels are not available in this context"}
		}
		r.predictor = r.cfg.Prediction()
	}
	return r.predictor, nil
}

func (r *resolver) resolve(v Value) (Value, error) {
	switch t := v.(type) {
	case Deferred:
		return r.resolveDeferred(t)
	case Tuple:
		items, err := r.resolveItems(t)
		return Tuple(items), err
	case List:
		items, err := r.resolveItems(t)
		return List(items), err
	case Map:
		out := make(Map, len(t))
		for key, item := range t {
			if key == InjectedKey {
				predictor, err := r.prediction()
				if err != nil {
					return nil, err
				}
				injected, err := predictor.Injected()
				if err != nil {
					return nil, err
				}
				out[key] = injected
				continue
			}
			resolved, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *resolver) resolveItems(items []Value) ([]Value, error) {
	out := make([]Value, 0, len(items))
	for _, item := range items {
		resolved, err := r.resolve(item)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (r *resolver) resolveDeferred(d Deferred) (Value, error) {
	switch d.Kind {
	case KindHostName:
		return String(r.cfg.HostName), nil
	case KindServiceName:
		return String(r.cfg.ServiceName), nil
	case KindServiceLevel:
		if r.cfg.ServiceLevel == nil {
			return Int(0), nil
		}
		return Int(int64(r.cfg.ServiceLevel())), nil
	case KindOnlyFrom:
		if r.cfg.OnlyFrom == nil {
			return Null, nil
		}
		if v := r.cfg.OnlyFrom(); v != nil {
			return v, nil
		}
		return Null, nil
	case KindPredictiveLevels:
		return r.resolvePredictive(d.Payload)
	default:
		return nil, &domain.ConfigurationError{Msg: fmt.Sprintf("unsupported deferred parameter kind %q", d.Kind)}
	}
}

func (r *resolver) resolvePredictive(payload Value) (Value, error) {
	metric, direction, parameters, err := ParsePredictive(payload)
	if err != nil {
		return nil, err
	}
	predictor, err := r.prediction()
	if err != nil {
		return nil, err
	}
	reference, levels, err := predictor.PredictiveLevels(metric, direction, parameters)
	if err != nil {
		return nil, err
	}
	refValue := Value(Null)
	if reference != nil {
		refValue = Float(*reference)
	}
	levelsValue := Value(Null)
	if levels != nil {
		levelsValue = Tuple{Float(levels[0]), Float(levels[1])}
	}
	return Tuple{String("predictive"), Tuple{String(metric), refValue, levelsValue}}, nil
}
