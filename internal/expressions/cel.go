package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
)

// scopeKeys are the namespaces of an AvailableData scope.
var scopeKeys = []string{"session", "source", "node_outputs"}

// CELEngine evaluates guard expressions against a node's scope.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine declares the scope namespaces. session and node_outputs are
// maps; source is dyn because a single direct predecessor may have emitted a
// scalar. Optional access (node_outputs[?"fetch"]), the string extension
// library and original_size are available.
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("session", mapType),
		cel.Variable("source", cel.DynType),
		cel.Variable("node_outputs", mapType),
		cel.OptionalTypes(),
		ext.Strings(),
		cel.Function(OriginalSizeFunc,
			cel.Overload(OriginalSizeFunc+"_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(celOriginalSize))),
	)
	if err != nil {
		return nil, fmt.Errorf("cel: build scope environment: %w", err)
	}
	return &CELEngine{env: env, cache: make(map[string]cel.Program)}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs expression against data. Missing namespaces are empty maps.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpressionError(e.Name())
	}
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(scopeKeys))
	for _, key := range scopeKeys {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = map[string]any{}
		}
	}

	out, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return nil, evalError(e.Name(), expression, data, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileError(e.Name(), expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, compileError(e.Name(), expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

// celOriginalSize reads native scope values first, so markers coming from
// recorded outputs are recognized. CEL list literals fall back to their size.
func celOriginalSize(v ref.Val) ref.Val {
	if n, ok := originalSize(v.Value()); ok {
		return types.Int(n)
	}
	if l, ok := v.(traits.Lister); ok {
		return l.Size()
	}
	return types.NewErr("%s: %s is neither an array nor a compacted array", OriginalSizeFunc, v.Type().TypeName())
}
