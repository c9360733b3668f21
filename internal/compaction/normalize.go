package compaction

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// circularMarker replaces a container that appears inside itself.
const circularMarker = "[circular]"

// normalizer converts arbitrary Go values into the JSON-like tree
// (map[string]any, []any, float64, string, bool, nil).
// It tracks the containers on the current path so self-referencing values terminate.
type normalizer struct {
	onPath map[uintptr]bool
}

func newNormalizer() *normalizer {
	return &normalizer{onPath: make(map[uintptr]bool)}
}

// Normalize returns v as a JSON-like tree. It never fails: values with no
// JSON form are rendered with fmt.
func Normalize(v any) any {
	return newNormalizer().value(v)
}

func (n *normalizer) value(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool, float64:
		return val
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(val, &out); err != nil {
			return string(val)
		}
		return n.value(out)
	case map[string]any:
		return n.object(val)
	case []any:
		return n.array(val)
	}
	return n.reflectValue(v)
}

func (n *normalizer) object(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	ptr := reflect.ValueOf(m).Pointer()
	if n.onPath[ptr] {
		return circularMarker
	}
	n.onPath[ptr] = true
	defer delete(n.onPath, ptr)

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = n.value(v)
	}
	return out
}

func (n *normalizer) array(s []any) any {
	if s == nil {
		return []any{}
	}
	var ptr uintptr
	if len(s) > 0 {
		ptr = reflect.ValueOf(s).Pointer()
		if n.onPath[ptr] {
			return circularMarker
		}
		n.onPath[ptr] = true
		defer delete(n.onPath, ptr)
	}

	out := make([]any, len(s))
	for i, v := range s {
		out[i] = n.value(v)
	}
	return out
}

// reflectValue handles typed maps, slices, pointers and structs.
func (n *normalizer) reflectValue(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return n.value(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		ptr := rv.Pointer()
		if n.onPath[ptr] {
			return circularMarker
		}
		n.onPath[ptr] = true
		defer delete(n.onPath, ptr)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = n.value(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = n.value(rv.Index(i).Interface())
		}
		return out
	}

	// Structs and anything else: go through their JSON form.
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}
