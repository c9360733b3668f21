package expressions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ParsedKind discriminates the value held by a Parsed.
type ParsedKind string

const (
	KindStructured ParsedKind = "structured"
	KindNumber     ParsedKind = "number"
	KindBoolean    ParsedKind = "boolean"
	KindString     ParsedKind = "string"
)

// Parsed is the result of coercing user text to a declared field type.
//
// Coercion failures are soft: Kind is KindString, Value is the original text,
// and Err carries a TYPE_COERCION error describing what went wrong.
type Parsed struct {
	Kind  ParsedKind `json:"kind"`
	Value any        `json:"value"`
	Err   error      `json:"-"`
}

// OK reports whether the text was coerced to the requested type.
func (p Parsed) OK() bool {
	return p.Err == nil
}

func (p Parsed) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind  ParsedKind `json:"kind"`
		Value any        `json:"value"`
		Error string     `json:"error,omitempty"`
	}
	w := wire{Kind: p.Kind, Value: p.Value}
	if p.Err != nil {
		w.Error = p.Err.Error()
	}
	return json.Marshal(w)
}

var (
	trueWords  = map[string]bool{"true": true, "1": true, "yes": true}
	falseWords = map[string]bool{"false": true, "0": true, "no": true}
)

// Coercer parses free text into typed values and logs soft failures.
type Coercer struct {
	logger *slog.Logger
}

// NewCoercer creates a Coercer. A nil logger uses slog.Default().
func NewCoercer(logger *slog.Logger) *Coercer {
	return &Coercer{logger: logger}
}

func (c *Coercer) log() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// ParseInput coerces text with a Coercer using the default logger.
func ParseInput(text string, typ schema.FieldType) Parsed {
	return (*Coercer)(nil).Parse(context.Background(), text, typ)
}

// Parse coerces text to typ.
//
//   - number: a finite float
//   - boolean: true/1/yes or false/0/no, case-insensitive
//   - object, array: a JSON literal of that shape
//   - any: structured, then number, then boolean, then the raw string
//   - string (and unknown types): the raw string
func (c *Coercer) Parse(ctx context.Context, text string, typ schema.FieldType) Parsed {
	switch typ {
	case schema.FieldNumber:
		return c.soft(ctx, text, typ, parseNumber)
	case schema.FieldBoolean:
		return c.soft(ctx, text, typ, parseBoolean)
	case schema.FieldObject:
		return c.soft(ctx, text, typ, structuredParser(true, false))
	case schema.FieldArray:
		return c.soft(ctx, text, typ, structuredParser(false, true))
	case schema.FieldAny:
		for _, parse := range []func(string) (Parsed, string){structuredParser(true, true), parseNumber, parseBoolean} {
			if parsed, reason := parse(text); reason == "" {
				return parsed
			}
		}
	}
	return Parsed{Kind: KindString, Value: text}
}

// soft runs parse and degrades a failure to the raw string.
func (c *Coercer) soft(ctx context.Context, text string, typ schema.FieldType, parse func(string) (Parsed, string)) Parsed {
	p, reason := parse(text)
	if reason == "" {
		return p
	}
	err := schema.NewTypeCoercionError(text, typ, reason)
	c.log().WarnContext(ctx, "input coercion failed, keeping raw text",
		slog.String("type", string(typ)),
		slog.String("reason", reason),
	)
	return Parsed{Kind: KindString, Value: text, Err: err}
}

// parseNumber accepts decimal literals only. ParseFloat would also take hex
// floats such as 0x1p4.
func parseNumber(text string) (Parsed, string) {
	text = strings.TrimSpace(text)
	digits := strings.ToLower(strings.TrimLeft(text, "+-"))
	if strings.HasPrefix(digits, "0x") {
		return Parsed{}, "not a decimal number"
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Parsed{}, "not a number"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Parsed{}, "number is not finite"
	}
	return Parsed{Kind: KindNumber, Value: f}, ""
}

func parseBoolean(text string) (Parsed, string) {
	word := strings.ToLower(strings.TrimSpace(text))
	switch {
	case trueWords[word]:
		return Parsed{Kind: KindBoolean, Value: true}, ""
	case falseWords[word]:
		return Parsed{Kind: KindBoolean, Value: false}, ""
	default:
		return Parsed{}, "expected one of true/false, yes/no, 1/0"
	}
}

func structuredParser(allowObject, allowArray bool) func(string) (Parsed, string) {
	return func(text string) (Parsed, string) {
		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return Parsed{}, "malformed JSON: " + err.Error()
		}
		if dec.More() {
			return Parsed{}, "trailing data after JSON value"
		}
		switch v.(type) {
		case map[string]any:
			if !allowObject {
				return Parsed{}, "expected a JSON array, got an object"
			}
		case []any:
			if !allowArray {
				return Parsed{}, "expected a JSON object, got an array"
			}
		default:
			return Parsed{}, "expected a JSON object or array"
		}
		return Parsed{Kind: KindStructured, Value: compaction.Normalize(v)}, ""
	}
}

// Stringify renders value for display next to a field of type typ.
// Objects and arrays become JSON indented by two spaces, as does a string
// holding JSON when typ is structured. Other strings pass through, nil is
// empty and numbers use their shortest decimal form.
func Stringify(value any, typ schema.FieldType) string {
	if value == nil {
		return ""
	}
	if p, ok := value.(Parsed); ok {
		return Stringify(p.Value, typ)
	}

	v := compaction.Normalize(value)
	switch val := v.(type) {
	case string:
		if typ.Structured() {
			if p, reason := structuredParser(true, true)(val); reason == "" {
				return indentJSON(p.Value)
			}
		}
		return val
	case map[string]any, []any:
		return indentJSON(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
