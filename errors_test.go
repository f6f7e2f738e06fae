package model

import (
	"errors"
	"testing"
)

func TestEvaluationErrorMessage(t *testing.T) {
	err := &EvaluationError{
		Engine: "expr",
		Expr:   "a + b",
		Target: "shop.Item.subtotal",
		Err:    errors.New("boom"),
	}
	want := `model: expr evaluator expr="a + b" target=shop.Item.subtotal: boom`
	if got := err.Error(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	blank := &EvaluationError{Engine: "cel", Err: errors.New("bad")}
	if got := blank.Error(); got != "model: cel evaluator expr=<empty> target=: bad" {
		t.Fatalf("got %q", got)
	}

	var missing *EvaluationError
	if missing.Error() != "<nil>" {
		t.Fatalf("nil receiver message: %q", missing.Error())
	}
	if missing.Unwrap() != nil {
		t.Fatalf("nil receiver must unwrap to nil")
	}
}

func TestEvaluationErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := &EvaluationError{Engine: "expr", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected unwrap to reach the cause")
	}
}

func TestWrapEvaluatorError(t *testing.T) {
	if wrapEvaluatorError("expr", nil) != nil {
		t.Fatalf("nil must pass through")
	}

	already := &EvaluationError{Engine: "cel", Err: errors.New("x")}
	if got := wrapEvaluatorError("expr", already); got != already {
		t.Fatalf("evaluation errors must pass through unchanged")
	}

	prefixed := errors.New("model: already tagged")
	if got := wrapEvaluatorError("expr", prefixed); got != prefixed {
		t.Fatalf("module-tagged errors must pass through unchanged")
	}

	cause := errors.New("boom")
	wrapped := wrapEvaluatorError("expr", cause)
	if wrapped.Error() != "model: expr evaluator: boom" {
		t.Fatalf("got %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected wrap to keep the cause")
	}
}

func TestWrapEvaluationErrorFillsEmptyFields(t *testing.T) {
	if wrapEvaluationError("expr", "e", "t", nil) != nil {
		t.Fatalf("nil must pass through")
	}

	base := &EvaluationError{Err: errors.New("boom")}
	got := wrapEvaluationError("cel", "1 + 1", "shop.Item.subtotal", base)
	var evalErr *EvaluationError
	if !errors.As(got, &evalErr) || evalErr != base {
		t.Fatalf("expected the original evaluation error back")
	}
	if evalErr.Engine != "cel" || evalErr.Expr != "1 + 1" || evalErr.Target != "shop.Item.subtotal" {
		t.Fatalf("expected empty fields filled, got %+v", evalErr)
	}

	keep := &EvaluationError{Engine: "expr", Expr: "x", Target: "y", Err: errors.New("boom")}
	_ = wrapEvaluationError("cel", "other", "other", keep)
	if keep.Engine != "expr" || keep.Expr != "x" || keep.Target != "y" {
		t.Fatalf("expected existing fields preserved, got %+v", keep)
	}

	plain := errors.New("plain")
	wrapped := wrapEvaluationError("expr", "a", "b", plain)
	if !errors.As(wrapped, &evalErr) {
		t.Fatalf("expected an EvaluationError wrapper, got %v", wrapped)
	}
	if evalErr.Engine != "expr" || evalErr.Expr != "a" || evalErr.Target != "b" {
		t.Fatalf("wrapper fields: %+v", evalErr)
	}
	if !errors.Is(wrapped, plain) {
		t.Fatalf("expected wrap to keep the cause")
	}
}

func TestPathErrorMessage(t *testing.T) {
	err := &PathError{TypeName: "shop.Order", Path: "items.quantity", Err: errors.New("boom")}
	if got := err.Error(); got != `path: "items.quantity" on shop.Order: boom` {
		t.Fatalf("got %q", got)
	}

	withSegment := &PathError{
		TypeName: "shop.Order",
		Path:     "items.quantity",
		Segment:  "quantity",
		Err:      errors.New("boom"),
	}
	if got := withSegment.Error(); got != `path: "items.quantity" on shop.Order at "quantity": boom` {
		t.Fatalf("got %q", got)
	}

	var missing *PathError
	if missing.Error() != "<nil>" {
		t.Fatalf("nil receiver message: %q", missing.Error())
	}
	if missing.Unwrap() != nil {
		t.Fatalf("nil receiver must unwrap to nil")
	}
}

func TestPathErrorUnwrap(t *testing.T) {
	err := &PathError{TypeName: "shop.Order", Path: "x", Err: ErrInvalidPath}
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected unwrap to reach ErrInvalidPath")
	}
}
