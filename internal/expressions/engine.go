package expressions

import (
	"context"
	"fmt"
	"sort"

	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Engine evaluates a preview expression against the data a node can see.
// Three implementations: CEL (guards), GoJQ (transforms), Expr (logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// NewEngines builds one of each engine, keyed by Name().
func NewEngines() (map[string]Engine, error) {
	cel, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	engines := map[string]Engine{}
	for _, e := range []Engine{cel, NewGoJQEngine(), NewExprEngine()} {
		engines[e.Name()] = e
	}
	return engines, nil
}

// EngineNames returns the sorted keys of engines.
func EngineNames(engines map[string]Engine) []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named engine or an error listing the available ones.
func Lookup(engines map[string]Engine, name string) (Engine, error) {
	e, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown expression engine %q (available: %v)", name, EngineNames(engines))
	}
	return e, nil
}

// OriginalSizeFunc is the helper every engine exposes for compacted arrays:
// original_size(x) is the recorded length of a truncation marker, or the
// length of a plain array.
const OriginalSizeFunc = "original_size"

func originalSize(v any) (int, bool) {
	if n, ok := compaction.OriginalLength(v); ok {
		return n, true
	}
	if items, ok := v.([]any); ok {
		return len(items), true
	}
	return 0, false
}

func emptyExpressionError(engine string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: empty preview expression", engine)
}

// compileError reports an expression that cannot be compiled. It is the
// author's mistake, so it is a validation error.
func compileError(engine, expression string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: preview expression %q does not compile: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}

// evalError reports a compiled expression that failed against the node's data,
// listing the namespaces that data carried.
func evalError(engine, expression string, data map[string]any, err error) *schema.FlowError {
	present := make([]string, 0, len(data))
	for k := range data {
		present = append(present, k)
	}
	sort.Strings(present)
	return schema.NewErrorf(schema.ErrCodeExecution, "%s: preview expression %q failed on the available data: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": expression, "namespaces": present})
}
