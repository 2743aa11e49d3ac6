package state

import (
	"encoding/json"
	"math"
)

// Snapshot maps device keys to their on/off value.
//
// A Snapshot produced by Normalize, Store.Read or Store.Write always holds
// every catalog key. Snapshots built by hand may be partial; Store.Write
// fills the gaps with false.
type Snapshot map[string]bool

// Normalize coerces a stored record into a complete snapshot.
//
// raw is whatever the tree returned for the structured path (or the
// assembled legacy keys). Each catalog key is coerced with Truthy; keys
// missing from raw, and every key when raw is not an object, become false.
// Keys outside the catalog are dropped.
func Normalize(raw any, catalog Catalog) Snapshot {
	out := make(Snapshot, catalog.Len())
	for _, k := range catalog.keys {
		out[k] = false
	}

	switch rec := raw.(type) {
	case Snapshot:
		for _, k := range catalog.keys {
			out[k] = rec[k]
		}
	case map[string]bool:
		for _, k := range catalog.keys {
			out[k] = rec[k]
		}
	case map[string]any:
		for _, k := range catalog.keys {
			out[k] = Truthy(rec[k])
		}
	}
	return out
}

// Truthy converts a decoded JSON value to a boolean.
//
// nil, false, zero, NaN and the empty string are false. Every other value,
// including empty objects and arrays, is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t != ""
		}
		return f != 0 && !math.IsNaN(f)
	default:
		return true
	}
}

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Only returns a copy of s restricted to keys.
func (s Snapshot) Only(keys []string) Snapshot {
	out := make(Snapshot, len(keys))
	for _, k := range keys {
		out[k] = s[k]
	}
	return out
}

// Toggled returns a copy of s with each of keys negated independently.
func (s Snapshot) Toggled(keys []string) Snapshot {
	out := s.Clone()
	for _, k := range keys {
		out[k] = !s[k]
	}
	return out
}

// With returns a copy of s with key set to on.
func (s Snapshot) With(key string, on bool) Snapshot {
	out := s.Clone()
	out[key] = on
	return out
}
