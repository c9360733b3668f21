package expressions

import (
	"regexp"
	"strings"

	"github.com/rendis/nodeflow/pkg/schema"
)

// placeholderPattern matches {{name}} where name has no whitespace or braces.
// "{{ case.id }}" is therefore not a placeholder.
var placeholderPattern = regexp.MustCompile(`\{\{([^\s{}]+)\}\}`)

// exactPlaceholder matches a string that is nothing but one placeholder.
var exactPlaceholder = regexp.MustCompile(`^\{\{([^\s{}]+)\}\}$`)

// ExtractVariables returns the distinct placeholder names in text, in the
// order they first appear.
func ExtractVariables(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// SchemaFromVariables turns dotted placeholder names into a nested object
// contract with `any` leaves. A name that is both a leaf and a prefix of a
// longer name becomes an object.
func SchemaFromVariables(names []string) map[string]*schema.SchemaField {
	root := map[string]*schema.SchemaField{}
	for _, name := range names {
		segments := strings.Split(name, ".")
		props := root
		for i, seg := range segments {
			if seg == "" {
				break
			}
			field, ok := props[seg]
			last := i == len(segments)-1
			switch {
			case !ok && last:
				props[seg] = &schema.SchemaField{Name: seg, Type: schema.FieldAny}
			case !ok:
				field = &schema.SchemaField{Name: seg, Type: schema.FieldObject, Properties: map[string]*schema.SchemaField{}}
				props[seg] = field
			case !last && field.Type != schema.FieldObject:
				field.Type = schema.FieldObject
				field.Properties = map[string]*schema.SchemaField{}
			}
			if last {
				break
			}
			props = props[seg].Properties
		}
	}
	return root
}

// Flatten collapses nested objects into dot-joined keys:
// {"a": {"b": 1}} becomes {"a.b": 1}. Empty objects and non-objects are leaves.
func Flatten(data map[string]any, sep string) map[string]any {
	out := make(map[string]any)
	flattenInto(out, data, "", sep)
	return out
}

func flattenInto(out, data map[string]any, prefix, sep string) {
	for k, v := range data {
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flattenInto(out, nested, key, sep)
			continue
		}
		out[key] = v
	}
}
