package compaction

import (
	"sort"
	"strings"
)

// Signature returns a string fingerprint of a value's shape.
//
//	null                -> "null"
//	[]                  -> "array:empty"
//	[x, ...]            -> "array:" + Signature(x)
//	{k: v, ...}         -> "object:{k:Signature(v),...}" with keys sorted
//	string/number/bool  -> "string" | "number" | "boolean"
//
// Only the first element of an array is inspected.
func Signature(v any) string {
	return signature(Normalize(v))
}

// signature expects an already normalized tree.
func signature(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []any:
		if len(val) == 0 {
			return "array:empty"
		}
		return "array:" + signature(val[0])
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + signature(val[k])
		}
		return "object:{" + strings.Join(parts, ",") + "}"
	case string:
		if val == circularMarker {
			return "circular"
		}
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "unknown"
	}
}

// UniformSchema reports whether every element shares the first element's signature.
// An empty slice is uniform.
func UniformSchema(items []any) bool {
	if len(items) == 0 {
		return true
	}
	first := signature(Normalize(items[0]))
	for _, item := range items[1:] {
		if signature(Normalize(item)) != first {
			return false
		}
	}
	return true
}
