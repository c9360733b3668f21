package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Rendering is the result of substituting placeholders in a template.
type Rendering struct {
	Text     string         `json:"text"`
	Resolved map[string]any `json:"resolved"`
	Missing  []string       `json:"missing,omitempty"`
}

// Render replaces each {{path}} in text with the value at path inside scope
// (normally AvailableData.Scope()). Strings are inserted raw and other values
// as compact JSON. Placeholders that do not resolve are left verbatim and
// listed in Missing.
func Render(text string, scope map[string]any) Rendering {
	r := Rendering{Resolved: map[string]any{}}
	missing := map[string]bool{}

	r.Text = placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-2]
		val, err := LookupPath(scope, name)
		if err != nil {
			if !missing[name] {
				missing[name] = true
				r.Missing = append(r.Missing, name)
			}
			return token
		}
		r.Resolved[name] = val
		return marshalInline(val)
	})
	return r
}

// ConfigRendering is the result of RenderConfig.
type ConfigRendering struct {
	Config   map[string]any `json:"config"`
	Resolved map[string]any `json:"resolved"`
	Missing  []string       `json:"missing,omitempty"`
}

// RenderConfig renders every string inside a node configuration. A string that
// is exactly one placeholder is replaced by the referenced value itself, so
// "{{source.items}}" yields the array rather than its JSON text.
// config is not modified.
func RenderConfig(config map[string]any, scope map[string]any) ConfigRendering {
	cr := ConfigRendering{Resolved: map[string]any{}}
	missing := map[string]bool{}

	var walk func(v any) any
	walk = func(v any) any {
		switch val := v.(type) {
		case string:
			if m := exactPlaceholder.FindStringSubmatch(val); m != nil {
				if resolved, err := LookupPath(scope, m[1]); err == nil {
					cr.Resolved[m[1]] = resolved
					return compaction.Clone(resolved)
				}
			}
			r := Render(val, scope)
			for k, rv := range r.Resolved {
				cr.Resolved[k] = rv
			}
			for _, name := range r.Missing {
				if !missing[name] {
					missing[name] = true
					cr.Missing = append(cr.Missing, name)
				}
			}
			return r.Text
		case map[string]any:
			out := make(map[string]any, len(val))
			for k, child := range val {
				out[k] = walk(child)
			}
			return out
		case []any:
			out := make([]any, len(val))
			for i, child := range val {
				out[i] = walk(child)
			}
			return out
		default:
			return val
		}
	}

	cfg, _ := walk(compaction.Normalize(config)).(map[string]any)
	if cfg == nil {
		cfg = map[string]any{}
	}
	cr.Config = cfg
	sort.Strings(cr.Missing)
	return cr
}

// LookupPath resolves a dot-delimited path inside root. Objects are indexed by
// key and arrays by decimal position. An empty path returns root.
func LookupPath(root any, path string) (any, error) {
	if path == "" {
		return root, nil
	}
	current := root
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", path, i).
				WithDetails(map[string]any{"expression": path})
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				available := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"field %q not found in %q; available: [%s]", seg, path, strings.Join(available, ", ")).
					WithDetails(map[string]any{"expression": path, "available_fields": available})
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"index %q out of range in %q (length %d)", seg, path, len(v)).
					WithDetails(map[string]any{"expression": path})
			}
			current = v[idx]
		default:
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, path, current).
				WithDetails(map[string]any{"expression": path})
		}
	}
	return current, nil
}

// marshalInline converts a resolved value into its inline text form.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns the sorted keys of m.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
