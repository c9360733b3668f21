package compaction

// DefaultThreshold is the array length above which uniform arrays are truncated.
const DefaultThreshold = 2

// Marker keys of a truncated array.
const (
	KeyOptimized      = "optimized"
	KeyOriginalLength = "originalLength"
	KeyItems          = "items"
)

// Compact reduces v for storage using DefaultThreshold.
func Compact(v any) any {
	return CompactWithThreshold(v, DefaultThreshold)
}

// CompactWithThreshold walks v depth-first. Any array longer than threshold whose
// elements all share the first element's signature becomes
//
//	{"optimized": true, "originalLength": N, "items": [Compact(first)]}
//
// Other arrays are compacted element-wise, objects field-wise; scalars pass through.
// The result never aliases the input.
func CompactWithThreshold(v any, threshold int) any {
	if threshold < 0 {
		threshold = 0
	}
	return compact(Normalize(v), threshold)
}

func compact(v any, threshold int) any {
	switch val := v.(type) {
	case []any:
		if len(val) > threshold && uniform(val) {
			return map[string]any{
				KeyOptimized:      true,
				KeyOriginalLength: float64(len(val)),
				KeyItems:          []any{compact(val[0], threshold)},
			}
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = compact(item, threshold)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = compact(item, threshold)
		}
		return out
	default:
		return val
	}
}

// uniform is UniformSchema over an already normalized slice.
func uniform(items []any) bool {
	first := signature(items[0])
	for _, item := range items[1:] {
		if signature(item) != first {
			return false
		}
	}
	return true
}

// IsMarker reports whether v is a truncated-array marker produced by Compact.
func IsMarker(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 3 {
		return false
	}
	if opt, _ := m[KeyOptimized].(bool); !opt {
		return false
	}
	if _, ok := m[KeyOriginalLength].(float64); !ok {
		return false
	}
	items, ok := m[KeyItems].([]any)
	return ok && len(items) == 1
}

// OriginalLength returns the array length recorded in a marker.
func OriginalLength(v any) (int, bool) {
	if !IsMarker(v) {
		return 0, false
	}
	return int(v.(map[string]any)[KeyOriginalLength].(float64)), true
}

// Expand replaces every marker in v with its one-element items array.
// The result has the signature of the original with arrays truncated to one
// representative element; the original length is not restored.
func Expand(v any) any {
	switch val := Normalize(v).(type) {
	case map[string]any:
		if IsMarker(val) {
			return []any{Expand(val[KeyItems].([]any)[0])}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Expand(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Expand(item)
		}
		return out
	default:
		return val
	}
}

// Ratio returns compacted size over original size, measured in tree nodes.
// It is 1 for values that compaction leaves untouched.
func Ratio(original, compacted any) float64 {
	before := countNodes(Normalize(original))
	if before == 0 {
		return 1
	}
	return float64(countNodes(Normalize(compacted))) / float64(before)
}

func countNodes(v any) int {
	switch val := v.(type) {
	case map[string]any:
		n := 1
		for _, item := range val {
			n += countNodes(item)
		}
		return n
	case []any:
		n := 1
		for _, item := range val {
			n += countNodes(item)
		}
		return n
	default:
		return 1
	}
}
