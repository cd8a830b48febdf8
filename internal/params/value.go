package params

import (
	"fmt"
	"sort"
	"strings"
)

// Value is one node of a parameter tree.
// Params: implemented by Scalar, Tuple, List, Map and Deferred.
// Returns: closed parameter value type.
type Value interface {
	isValue()
}

// Scalar holds nil, bool, int64, float64 or string.
type Scalar struct {
	V any
}

// Tuple is a fixed-size ordered sequence.
type Tuple []Value

// List is a variable-size ordered sequence.
type List []Value

// Map is a string-keyed mapping.
type Map map[string]Value

func (Scalar) isValue() {}
func (Tuple) isValue()  {}
func (List) isValue()   {}
func (Map) isValue()    {}

// String builds a string scalar.
func String(s string) Scalar { return Scalar{V: s} }

// Int builds an integer scalar.
func Int(i int64) Scalar { return Scalar{V: i} }

// Float builds a float scalar.
func Float(f float64) Scalar { return Scalar{V: f} }

// Bool builds a boolean scalar.
func Bool(b bool) Scalar { return Scalar{V: b} }

// Null is the nil scalar.
var Null = Scalar{}

// FromAny converts decoded TOML/YAML/JSON data into a parameter tree.
// Three-element arrays starting with the marker tag and a known kind become Deferred.
// Params: decoded value.
// Returns: parameter tree.
func FromAny(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null
	case Value:
		return v
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint64:
		return Int(int64(v))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case string:
		return String(v)
	case []string:
		out := make(List, 0, len(v))
		for _, item := range v {
			out = append(out, String(item))
		}
		return out
	case []any:
		if marker, ok := deferredFromSlice(v); ok {
			return marker
		}
		out := make(List, 0, len(v))
		for _, item := range v {
			out = append(out, FromAny(item))
		}
		return out
	case map[string]any:
		out := make(Map, len(v))
		for key, item := range v {
			out[key] = FromAny(item)
		}
		return out
	default:
		return Scalar{V: v}
	}
}

// MapFromAny converts decoded mapping into Map.
// Params: decoded mapping (nil allowed).
// Returns: parameter map, nil for nil input.
func MapFromAny(raw map[string]any) Map {
	if raw == nil {
		return nil
	}
	return FromAny(raw).(Map)
}

func deferredFromSlice(v []any) (Deferred, bool) {
	if len(v) != 3 {
		return Deferred{}, false
	}
	tag, ok := v[0].(string)
	if !ok || tag != MarkerTag {
		return Deferred{}, false
	}
	kind, ok := v[1].(string)
	if !ok || !Kind(kind).Known() {
		return Deferred{}, false
	}
	return Deferred{Kind: Kind(kind), Payload: FromAny(v[2])}, true
}

// ToAny converts parameter tree back into plain Go values.
// Params: parameter tree.
// Returns: nil/bool/int64/float64/string, []any and map[string]any values.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Scalar:
		return t.V
	case Tuple:
		return sliceToAny(t)
	case List:
		return sliceToAny(t)
	case Map:
		out := make(map[string]any, len(t))
		for key, item := range t {
			out[key] = ToAny(item)
		}
		return out
	case Deferred:
		return []any{MarkerTag, string(t.Kind), ToAny(t.Payload)}
	default:
		return nil
	}
}

func sliceToAny(items []Value) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, ToAny(item))
	}
	return out
}

// Get returns value stored under key.
// Params: key.
// Returns: value and presence flag.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// Keys returns sorted keys.
// Params: none.
// Returns: sorted key list.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// AsString reads string scalar.
// Params: value.
// Returns: string and ok flag.
func AsString(v Value) (string, bool) {
	s, ok := v.(Scalar)
	if !ok {
		return "", false
	}
	str, ok := s.V.(string)
	return str, ok
}

// AsFloat reads numeric scalar as float64.
// Params: value.
// Returns: number and ok flag.
func AsFloat(v Value) (float64, bool) {
	s, ok := v.(Scalar)
	if !ok {
		return 0, false
	}
	switch n := s.V.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// AsInt reads integral scalar.
// Params: value.
// Returns: integer and ok flag.
func AsInt(v Value) (int64, bool) {
	s, ok := v.(Scalar)
	if !ok {
		return 0, false
	}
	switch n := s.V.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// IsNull reports whether value is the nil scalar (or missing).
// Params: value.
// Returns: true for nil.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	s, ok := v.(Scalar)
	return ok && s.V == nil
}

// Elements returns items of a Tuple or List.
// Params: value.
// Returns: items and ok flag.
func Elements(v Value) ([]Value, bool) {
	switch t := v.(type) {
	case Tuple:
		return t, true
	case List:
		return t, true
	default:
		return nil, false
	}
}

// AsFloatPair reads a two-number Tuple or List such as (warn, crit).
// Params: value.
// Returns: both numbers and ok flag.
func AsFloatPair(v Value) (float64, float64, bool) {
	items, ok := Elements(v)
	if !ok || len(items) != 2 {
		return 0, 0, false
	}
	first, ok1 := AsFloat(items[0])
	second, ok2 := AsFloat(items[1])
	return first, second, ok1 && ok2
}

// Format renders value in a compact, deterministic notation for messages.
// Params: value.
// Returns: text form.
func Format(v Value) string {
	var builder strings.Builder
	format(&builder, v)
	return builder.String()
}

func format(b *strings.Builder, v Value) {
	switch t := v.(type) {
	case nil:
		b.WriteString("None")
	case Scalar:
		switch s := t.V.(type) {
		case nil:
			b.WriteString("None")
		case string:
			fmt.Fprintf(b, "%q", s)
		default:
			fmt.Fprintf(b, "%v", s)
		}
	case Tuple:
		formatItems(b, "(", ")", t)
	case List:
		formatItems(b, "[", "]", t)
	case Map:
		b.WriteString("{")
		for i, key := range t.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%q: ", key)
			format(b, t[key])
		}
		b.WriteString("}")
	case Deferred:
		fmt.Fprintf(b, "(%q, %q, ", MarkerTag, string(t.Kind))
		format(b, t.Payload)
		b.WriteString(")")
	}
}

func formatItems(b *strings.Builder, open, closing string, items []Value) {
	b.WriteString(open)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, item)
	}
	b.WriteString(closing)
}
