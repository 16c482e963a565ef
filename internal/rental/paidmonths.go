package rental

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Shape tells which representation a stored paid-month column was found in.
// Older clients wrote the list as JSON text, newer ones as a native array,
// and a few wrapped it in an object.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeString
	ShapeArray
	ShapeObject
	ShapeMalformed
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeString:
		return "string"
	case ShapeArray:
		return "array"
	case ShapeObject:
		return "object"
	default:
		return "malformed"
	}
}

// objectListKeys are the members searched, in order, when the list is
// wrapped in an object.
var objectListKeys = []string{"months", "paid_months", "paidMonths", "items", "data"}

// maxNesting bounds string-in-string and object-in-object unwrapping.
const maxNesting = 4

// PaidMonths is the set of months already settled on a contract.
type PaidMonths map[MonthKey]struct{}

// NewPaidMonths builds a set from keys, dropping invalid ones.
func NewPaidMonths(keys ...MonthKey) PaidMonths {
	p := make(PaidMonths, len(keys))
	for _, k := range keys {
		if k.Valid() {
			p[k] = struct{}{}
		}
	}
	return p
}

// Has reports whether k is paid.
func (p PaidMonths) Has(k MonthKey) bool {
	_, ok := p[k]
	return ok
}

// Merge returns a new set holding p and every valid key in add.
func (p PaidMonths) Merge(add ...MonthKey) PaidMonths {
	out := make(PaidMonths, len(p)+len(add))
	for k := range p {
		out[k] = struct{}{}
	}
	for _, k := range add {
		if k.Valid() {
			out[k] = struct{}{}
		}
	}
	return out
}

// Keys returns the months in chronological order.
func (p PaidMonths) Keys() []MonthKey {
	keys := make([]MonthKey, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Latest returns the most recent paid month.
func (p PaidMonths) Latest() (MonthKey, bool) {
	var latest MonthKey
	for k := range p {
		if k > latest {
			latest = k
		}
	}
	return latest, latest != ""
}

// MarshalJSON writes the set as a sorted array of keys, the canonical
// stored form.
func (p PaidMonths) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Keys())
}

// UnmarshalJSON accepts any of the shapes NormalizePaidMonths understands.
func (p *PaidMonths) UnmarshalJSON(b []byte) error {
	*p = NewPaidMonths(NormalizePaidMonths(json.RawMessage(b))...)
	return nil
}

// DecodePaidMonths reads a stored paid-month column. Whatever the shape, the
// result falls back to an empty set when nothing usable is found; the shape
// is returned so callers can report malformed rows.
func DecodePaidMonths(raw string) (PaidMonths, Shape) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return PaidMonths{}, ShapeEmpty
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return PaidMonths{}, ShapeMalformed
	}
	shape := shapeOf(v)
	keys, ok := normalize(v, 0)
	if !ok {
		return PaidMonths{}, ShapeMalformed
	}
	return NewPaidMonths(keys...), shape
}

// NormalizePaidMonths turns any of the persisted shapes into a sorted list
// of month keys: JSON text (possibly encoded twice), a native array, or an
// object wrapping the list. Unusable input yields an empty list.
func NormalizePaidMonths(v any) []MonthKey {
	keys, ok := normalize(v, 0)
	if !ok {
		return []MonthKey{}
	}
	return NewPaidMonths(keys...).Keys()
}

func shapeOf(v any) Shape {
	switch v.(type) {
	case nil:
		return ShapeEmpty
	case string:
		return ShapeString
	case []any:
		return ShapeArray
	case map[string]any:
		return ShapeObject
	default:
		return ShapeMalformed
	}
}

func normalize(v any, depth int) ([]MonthKey, bool) {
	if depth > maxNesting {
		return nil, false
	}
	switch t := v.(type) {
	case nil:
		return nil, true
	case []MonthKey:
		return t, true
	case []string:
		out := make([]MonthKey, 0, len(t))
		for _, s := range t {
			out = append(out, MonthKey(strings.TrimSpace(s)))
		}
		return out, true
	case []any:
		out := make([]MonthKey, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, MonthKey(strings.TrimSpace(s)))
			}
		}
		return out, true
	case json.RawMessage:
		return normalizeText(string(t), depth)
	case []byte:
		return normalizeText(string(t), depth)
	case string:
		s := strings.TrimSpace(t)
		// A bare key is a one-month list.
		if k := MonthKey(s); k.Valid() {
			return []MonthKey{k}, true
		}
		return normalizeText(s, depth)
	case map[string]any:
		return normalizeObject(t, depth)
	default:
		return nil, false
	}
}

func normalizeText(s string, depth int) ([]MonthKey, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil, true
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return normalize(v, depth+1)
}

func normalizeObject(m map[string]any, depth int) ([]MonthKey, bool) {
	for _, name := range objectListKeys {
		if inner, ok := m[name]; ok {
			return normalize(inner, depth+1)
		}
	}
	// {"2025-01": true} stores the set as object keys.
	if keys, ok := monthKeysOf(m); ok {
		return keys, true
	}
	// {"0": "2025-01", "1": "2025-02"} is what an array looks like after a
	// round trip through a JS object.
	indexes := make([]int, 0, len(m))
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, false
		}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]MonthKey, 0, len(indexes))
	for _, i := range indexes {
		if s, ok := m[strconv.Itoa(i)].(string); ok {
			out = append(out, MonthKey(strings.TrimSpace(s)))
		}
	}
	return out, true
}

func monthKeysOf(m map[string]any) ([]MonthKey, bool) {
	if len(m) == 0 {
		return nil, false
	}
	out := make([]MonthKey, 0, len(m))
	for k, v := range m {
		key := MonthKey(k)
		if !key.Valid() {
			return nil, false
		}
		if paid, ok := v.(bool); ok && !paid {
			continue
		}
		out = append(out, key)
	}
	return out, true
}
