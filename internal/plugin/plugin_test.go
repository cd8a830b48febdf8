package plugin

import (
	"iter"
	"testing"

	"checkengine/internal/domain"
)

func noop(CheckArgs) iter.Seq2[domain.Output, error] {
	return func(func(domain.Output, error) bool) {}
}

func TestCheckPluginDescribe(t *testing.T) {
	t.Parallel()

	df := CheckPlugin{Name: "df", ServiceName: "Filesystem %s", Sections: []domain.ParsedSectionName{"df"}, Check: noop}
	if !df.HasItem() {
		t.Fatalf("expected item plugin")
	}
	if got := df.Describe("/var"); got != "Filesystem /var" {
		t.Fatalf("unexpected description %q", got)
	}

	uptime := CheckPlugin{Name: "uptime", ServiceName: "Uptime", Sections: []domain.ParsedSectionName{"uptime"}, Check: noop}
	if uptime.HasItem() || uptime.Describe("ignored") != "Uptime" {
		t.Fatalf("unexpected itemless behavior")
	}
	if uptime.TakesParameters() {
		t.Fatalf("plugin without defaults or ruleset takes no parameters")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.RegisterCheck(CheckPlugin{Name: "b", ServiceName: "B", Sections: []domain.ParsedSectionName{"b"}, Check: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterCheck(CheckPlugin{Name: "a", ServiceName: "A", Sections: []domain.ParsedSectionName{"a"}, Check: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterCheck(CheckPlugin{Name: "a", ServiceName: "A", Sections: []domain.ParsedSectionName{"a"}, Check: noop}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := r.RegisterCheck(CheckPlugin{Name: "c", ServiceName: "C %s %s", Sections: []domain.ParsedSectionName{"c"}, Check: noop}); err == nil {
		t.Fatalf("expected placeholder error")
	}
	checks := r.Checks()
	if len(checks) != 2 || checks[0].Name != "a" {
		t.Fatalf("unexpected checks %+v", checks)
	}

	if err := r.RegisterSection(TrivialSectionPlugin("uptime")); err != nil {
		t.Fatalf("register section: %v", err)
	}
	section, ok := r.Section("uptime")
	if !ok || section.ParsedSectionName != "uptime" {
		t.Fatalf("unexpected section %+v", section)
	}
}

func TestTrivialSectionPlugin(t *testing.T) {
	t.Parallel()

	p := TrivialSectionPlugin("foo")
	rows := [][]string{{"a", "b"}}
	parsed, err := p.Parse(rows)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := parsed.([][]string)
	if !ok || len(got) != 1 || got[0][1] != "b" {
		t.Fatalf("unexpected parse result %#v", parsed)
	}
}

func TestYieldStopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	seen := 0
	more := Yield(func(domain.Output, error) bool {
		seen++
		return false
	}, domain.NewResult(domain.StateOK, "a"), domain.NewResult(domain.StateOK, "b"))
	if more || seen != 1 {
		t.Fatalf("expected stop after first output, seen=%d", seen)
	}
}
