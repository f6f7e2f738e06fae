package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownType indicates no registered provider could describe a type name.
	ErrUnknownType = errors.New("model: unknown type")
	// ErrUnknownEngine indicates a calculation named an evaluator engine that is
	// not registered in this build.
	ErrUnknownEngine = errors.New("model: unknown evaluator engine")
	// ErrReadOnly indicates a write against a read-only property.
	ErrReadOnly = errors.New("model: property is read-only")
	// ErrNoEvaluator indicates no evaluator could be resolved for a calculation.
	ErrNoEvaluator = errors.New("model: evaluator not configured")
)

// PathError reports a path string that failed to compile against its root type.
type PathError struct {
	TypeName string
	Path     string
	Segment  string
	Err      error
}

func (e *PathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Segment == "" {
		return fmt.Sprintf("path: %q on %s: %v", e.Path, e.TypeName, e.Err)
	}
	return fmt.Sprintf("path: %q on %s at %q: %v", e.Path, e.TypeName, e.Segment, e.Err)
}

func (e *PathError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Target string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("model: %s evaluator %s target=%s: %v", e.Engine, describeExpression(e.Expr), e.Target, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "model:") {
		return err
	}
	return fmt.Errorf("model: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, target string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Target == "" {
			evalErr.Target = target
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Target: target,
		Err:    err,
	}
}
