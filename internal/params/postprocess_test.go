package params

import (
	"errors"
	"strings"
	"testing"

	"checkengine/internal/domain"

	"github.com/google/go-cmp/cmp"
)

type fakePredictor struct {
	calls    []string
	injected Value
}

func (p *fakePredictor) PredictiveLevels(metric string, direction Direction, params PredictiveParameters) (*float64, *[2]float64, error) {
	p.calls = append(p.calls, metric+"/"+string(direction))
	ref := 10.0
	if direction == DirectionLower {
		return &ref, &[2]float64{ref - params.Warn, ref - params.Crit}, nil
	}
	return &ref, &[2]float64{ref + params.Warn, ref + params.Crit}, nil
}

func (p *fakePredictor) Injected() (Value, error) {
	return p.injected, nil
}

func testConfig(predictor *fakePredictor, created *int) Config {
	return Config{
		OnlyFrom:     func() Value { return List{String("10.0.0.1"), String("10.0.0.2")} },
		Prediction: func() Predictor {
			*created++
			return predictor
		},
		ServiceLevel: func() int { return 20 },
		HostName:     "web01",
		ServiceName:  "Filesystem /",
	}
}

func predictivePayload(metric string) Map {
	return Map{
		ReferenceMetricKey: String(metric),
		DirectionKey:       String("upper"),
		"period":           String("wday"),
		"horizon":          Int(90),
		"levels":           Tuple{String("absolute"), Tuple{Float(2), Float(4)}},
		"bound":            Null,
	}
}

func TestPostprocessWithoutMarkersIsIdentity(t *testing.T) {
	t.Parallel()

	in := MapFromAny(map[string]any{
		"levels":  []any{80.0, 90.0},
		"magic":   0.8,
		"name":    "root",
		"enabled": true,
		"nested":  map[string]any{"x": []any{int64(1), "two", nil}},
	})
	if NeedsPostprocessing(in) {
		t.Fatalf("plain parameters must not need postprocessing")
	}
	created := 0
	out, err := Postprocess(in, testConfig(&fakePredictor{}, &created))
	if err != nil {
		t.Fatalf("postprocess: %v", err)
	}
	if diff := cmp.Diff(Value(in), out); diff != "" {
		t.Fatalf("unexpected change (-want +got):\n%s", diff)
	}
	if created != 0 {
		t.Fatalf("prediction must not be created without predictive markers")
	}
}

func TestPostprocessResolvesAllKinds(t *testing.T) {
	t.Parallel()

	predictor := &fakePredictor{}
	created := 0
	in := Map{
		"host":    Marker(KindHostName, nil),
		"service": Marker(KindServiceName, nil),
		"sl":      List{Marker(KindServiceLevel, nil)},
		"from":    Marker(KindOnlyFrom, nil),
		"upper":   Marker(KindPredictiveLevels, predictivePayload("load1")),
		"again":   Tuple{Marker(KindPredictiveLevels, predictivePayload("load1"))},
	}
	if !NeedsPostprocessing(in) {
		t.Fatalf("markers must be detected")
	}

	out, err := Postprocess(in, testConfig(predictor, &created))
	if err != nil {
		t.Fatalf("postprocess: %v", err)
	}
	want := Map{
		"host":    String("web01"),
		"service": String("Filesystem /"),
		"sl":      List{Int(20)},
		"from":    List{String("10.0.0.1"), String("10.0.0.2")},
		"upper": Tuple{String("predictive"), Tuple{
			String("load1"), Float(10), Tuple{Float(12), Float(14)},
		}},
		"again": Tuple{Tuple{String("predictive"), Tuple{
			String("load1"), Float(10), Tuple{Float(12), Float(14)},
		}}},
	}
	if diff := cmp.Diff(Value(want), out); diff != "" {
		t.Fatalf("unexpected resolution (-want +got):\n%s", diff)
	}
	if NeedsPostprocessing(out) {
		t.Fatalf("resolved parameters must not contain markers")
	}
	if created != 1 {
		t.Fatalf("expected prediction context to be created once, got %d", created)
	}
}

func TestPostprocessReplacesLegacyInjectedKey(t *testing.T) {
	t.Parallel()

	predictor := &fakePredictor{injected: Map{"predictions": Map{}}}
	created := 0
	in := Map{"levels": Map{InjectedKey: Null, "period": String("wday")}}

	out, err := Postprocess(in, testConfig(predictor, &created))
	if err != nil {
		t.Fatalf("postprocess: %v", err)
	}
	want := Map{"levels": Map{InjectedKey: Map{"predictions": Map{}}, "period": String("wday")}}
	if diff := cmp.Diff(Value(want), out); diff != "" {
		t.Fatalf("unexpected resolution (-want +got):\n%s", diff)
	}
}

func TestPostprocessRejectsInvalidPredictiveLevels(t *testing.T) {
	t.Parallel()

	payload := predictivePayload("load1")
	delete(payload, DirectionKey)
	created := 0
	_, err := Postprocess(Map{"levels": Marker(KindPredictiveLevels, payload)}, testConfig(&fakePredictor{}, &created))

	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid predictive levels") || !strings.Contains(err.Error(), "load1") {
		t.Fatalf("error must name the payload: %v", err)
	}
}

func TestPostprocessFailsOnUnknownMarkerKind(t *testing.T) {
	t.Parallel()

	created := 0
	in := Tuple{Deferred{Kind: "bogus", Payload: Null}}
	if !NeedsPostprocessing(in) {
		t.Fatalf("deferred value must be detected")
	}
	if _, err := Postprocess(in, testConfig(&fakePredictor{}, &created)); err == nil {
		t.Fatalf("expected error for unknown marker kind")
	}
}

func TestFromAnyRecognizesMarkers(t *testing.T) {
	t.Parallel()

	got := FromAny(map[string]any{
		"host":  []any{MarkerTag, "host_name", nil},
		"other": []any{MarkerTag, "not_a_kind", nil},
	})
	want := Map{
		"host":  Deferred{Kind: KindHostName, Payload: Null},
		"other": List{String(MarkerTag), String("not_a_kind"), Null},
	}
	if diff := cmp.Diff(Value(want), got); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{
		"host":  []any{MarkerTag, "host_name", nil},
		"other": []any{MarkerTag, "not_a_kind", nil},
	}, ToAny(got)); diff != "" {
		t.Fatalf("unexpected plain form (-want +got):\n%s", diff)
	}
}

func TestInjectReferenceMetrics(t *testing.T) {
	t.Parallel()

	payload := predictivePayload("")
	delete(payload, ReferenceMetricKey)
	in := Map{
		"mem_used": Map{"levels_upper": Marker(KindPredictiveLevels, payload)},
		"cpu_util": Map{"levels_upper": Marker(KindPredictiveLevels, predictivePayload("explicit"))},
	}

	out := InjectReferenceMetrics(in)

	mem := out["mem_used"].(Map)["levels_upper"].(Deferred).Payload.(Map)
	if name, _ := AsString(mem[ReferenceMetricKey]); name != "mem_used" {
		t.Fatalf("expected injected metric name, got %q", name)
	}
	cpu := out["cpu_util"].(Map)["levels_upper"].(Deferred).Payload.(Map)
	if name, _ := AsString(cpu[ReferenceMetricKey]); name != "explicit" {
		t.Fatalf("explicit metric name must be kept, got %q", name)
	}
	if _, present := payload[ReferenceMetricKey]; present {
		t.Fatalf("input payload must not be mutated")
	}
}
