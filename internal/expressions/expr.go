package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates logic expressions with the scope namespaces as
// top-level variables: `source.total > 10 ? "big" : "small"`,
// `node_outputs.fetch?.status ?? 0`. original_size is available.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with data as its environment.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpressionError(e.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, evalError(e.Name(), expression, data, err)
	}
	return out, nil
}

// program compiles against an untyped environment, so the cached program does
// not depend on the first data it ran with.
func (e *ExprEngine) program(expression string) (*vm.Program, error) {
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

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.Function(OriginalSizeFunc, exprOriginalSize),
	)
	if err != nil {
		return nil, compileError(e.Name(), expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

func exprOriginalSize(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%s takes one argument, got %d", OriginalSizeFunc, len(params))
	}
	if n, ok := originalSize(params[0]); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%s: %T is neither an array nor a compacted array", OriginalSizeFunc, params[0])
}

var _ Engine = (*ExprEngine)(nil)
