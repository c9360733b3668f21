package compaction

// CloneMap deep-copies a JSON-like object. nil stays nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = Clone(v)
	}
	return cp
}

// Clone deep-copies a JSON-like value tree.
// Primitives are returned as-is; anything that is not a map[string]any or
// []any is treated as a primitive.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		if val == nil {
			return nil
		}
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = Clone(item)
		}
		return cp
	default:
		return v
	}
}
