package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeDanglingEdge  = "DANGLING_EDGE"
	ErrCodeTypeCoercion  = "TYPE_COERCION"
	ErrCodeInterpolation = "INTERPOLATION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeStore         = "STORE_ERROR"
)

// FlowError is the structured error type for all nodeflow operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// HasCode reports whether err (or anything it wraps) is a FlowError with the given code.
func HasCode(err error, code string) bool {
	var fe *FlowError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code == code
}

// NewCyclicGraphError reports a cycle found while walking predecessors.
// path lists the node IDs of the cycle, starting and ending on the same node.
func NewCyclicGraphError(path []string) *FlowError {
	return NewErrorf(ErrCodeCycleDetected, "graph contains a cycle: %s", strings.Join(path, " -> ")).
		WithDetails(map[string]any{"cycle": path})
}

// NewDanglingEdgeError reports an edge that references a node absent from the graph.
func NewDanglingEdgeError(edge Edge, missing string) *FlowError {
	return NewErrorf(ErrCodeDanglingEdge, "edge %s -> %s references unknown node %q", edge.Source, edge.Target, missing).
		WithDetails(map[string]any{"source": edge.Source, "target": edge.Target, "missing": missing})
}

// NewTypeCoercionError reports text that could not be coerced to the declared field type.
func NewTypeCoercionError(text string, typ FieldType, reason string) *FlowError {
	return NewErrorf(ErrCodeTypeCoercion, "cannot parse %q as %s: %s", text, typ, reason).
		WithDetails(map[string]any{"input": text, "type": string(typ)})
}
