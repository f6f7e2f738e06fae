package model

import (
	"errors"
	"fmt"
	"time"
)

// Calculation declares a derived value property: whenever one of the
// dependency paths changes for an instance, the expression re-evaluates
// against that instance's snapshot and the result is assigned to the target
// property, producing an ordinary value change event.
type Calculation struct {
	// Type names the root type the calculation applies to.
	Type string
	// Property names the target value property; it must be writable.
	Property string
	// Expr is the expression, in the engine's syntax.
	Expr string
	// DependsOn lists the paths, rooted at Type, whose changes trigger
	// re-evaluation.
	DependsOn []string
	// Engine selects the evaluator: "expr" (default), "cel", or "js" when the
	// build carries the js_eval tag.
	Engine string
}

type calculation struct {
	registry *Registry
	typ      *Type
	target   *ValueProperty
	expr     string
	engine   string
	rule     CompiledRule
	subs     []*PathSubscription
	busy     map[*Instance]struct{}
}

// AddCalculation compiles and registers a calculation. Each dependency path
// is subscribed; compile failures of the expression or of any path unwind the
// registration completely.
func (r *Registry) AddCalculation(c Calculation) error {
	if c.Expr == "" {
		return fmt.Errorf("model: calculation for %s.%s has no expression", c.Type, c.Property)
	}
	if len(c.DependsOn) == 0 {
		return fmt.Errorf("model: calculation for %s.%s has no dependency paths", c.Type, c.Property)
	}
	t, err := r.Resolve(c.Type)
	if err != nil {
		return err
	}
	target, ok := t.ValueProperty(c.Property)
	if !ok {
		return fmt.Errorf("model: calculation target %s.%s is not a value property", c.Type, c.Property)
	}
	if target.IsReadOnly() {
		return fmt.Errorf("%w: calculation target %s.%s", ErrReadOnly, c.Type, c.Property)
	}

	evaluator, engine, err := r.evaluatorFor(c.Engine)
	if err != nil {
		return err
	}
	rule, err := evaluator.Compile(c.Expr)
	if err != nil {
		return wrapEvaluationError(engine, c.Expr, c.Type+"."+c.Property, err)
	}

	calc := &calculation{
		registry: r,
		typ:      t,
		target:   target,
		expr:     c.Expr,
		engine:   engine,
		rule:     rule,
		busy:     map[*Instance]struct{}{},
	}
	for _, raw := range c.DependsOn {
		path, err := t.Path(raw)
		if err != nil {
			for _, sub := range calc.subs {
				sub.Cancel()
			}
			return err
		}
		calc.subs = append(calc.subs, path.Subscribe(calc.onChange))
	}
	r.calculations = append(r.calculations, calc)
	return nil
}

// Recalculate evaluates every calculation registered for the instance's type,
// regardless of dependency changes. Useful after wrapping pre-existing
// backing values.
func (r *Registry) Recalculate(inst *Instance) error {
	var errs []error
	for _, calc := range r.calculations {
		if !inst.typ.Is(calc.typ) {
			continue
		}
		if err := calc.apply(inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *calculation) onChange(root *Instance, _ Event) error {
	return c.apply(root)
}

// apply re-evaluates the expression for one instance. The busy set breaks
// self-dependency loops: a calculation whose assignment re-triggers one of
// its own dependency paths evaluates once per outer change.
func (c *calculation) apply(inst *Instance) error {
	if _, running := c.busy[inst]; running {
		return nil
	}
	c.busy[inst] = struct{}{}
	defer delete(c.busy, inst)

	snapshot, err := inst.Snapshot()
	if err != nil {
		return err
	}
	ctx := EvalContext{
		Snapshot: snapshot,
		Target:   c.typ.name + "." + c.target.Name(),
	}
	start := time.Now()
	value, evalErr := c.rule.Evaluate(ctx)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(c.engine, c.expr, ctx.Target, evalErr)
	c.registry.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   c.engine,
		Expr:     c.expr,
		Target:   ctx.Target,
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return evalErr
	}
	return inst.Set(c.target, value)
}

// Evaluate runs an ad-hoc expression against the instance's snapshot using
// the registry's default evaluator.
func (r *Registry) Evaluate(inst *Instance, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("model: expression must not be empty")
	}
	evaluator, engine, err := r.evaluatorFor("")
	if err != nil {
		return nil, err
	}
	snapshot, err := inst.Snapshot()
	if err != nil {
		return nil, err
	}
	ctx := EvalContext{Snapshot: snapshot, Target: inst.typ.name}
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, expr, ctx.Target, evalErr)
	r.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Target:   ctx.Target,
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

// evaluatorFor resolves the evaluator for an engine name, wiring the
// registry's program cache and function registry into fresh engines. The
// empty name selects the configured evaluator, building the expr default on
// first use.
func (r *Registry) evaluatorFor(engine string) (Evaluator, string, error) {
	switch engine {
	case "":
		if r.cfg.evaluator != nil {
			return r.cfg.evaluator, evaluatorEngineName(r.cfg.evaluator), nil
		}
		built, _, err := r.evaluatorFor("expr")
		if err != nil {
			return nil, "", err
		}
		r.cfg.evaluator = built
		return built, "expr", nil
	case "expr":
		var opts []ExprEvaluatorOption
		if r.cfg.programCache != nil {
			opts = append(opts, ExprWithProgramCache(r.cfg.programCache))
		}
		if r.cfg.functions != nil {
			opts = append(opts, ExprWithFunctionRegistry(r.cfg.functions))
		}
		e := NewExprEvaluator(opts...)
		if e == nil {
			return nil, "", ErrNoEvaluator
		}
		return e, "expr", nil
	case "cel":
		var opts []CELEvaluatorOption
		if r.cfg.programCache != nil {
			opts = append(opts, CELWithProgramCache(r.cfg.programCache))
		}
		if r.cfg.functions != nil {
			opts = append(opts, CELWithFunctionRegistry(r.cfg.functions))
		}
		e := NewCELEvaluator(opts...)
		if e == nil {
			return nil, "", ErrNoEvaluator
		}
		return e, "cel", nil
	case "js":
		if !jsEvaluatorAvailable() {
			return nil, "", fmt.Errorf("%w: js evaluator not built", ErrUnknownEngine)
		}
		var opts []JSEvaluatorOption
		if r.cfg.programCache != nil {
			opts = append(opts, JSWithProgramCache(r.cfg.programCache))
		}
		if r.cfg.functions != nil {
			opts = append(opts, JSWithFunctionRegistry(r.cfg.functions))
		}
		e := NewJSEvaluator(opts...)
		if e == nil {
			return nil, "", ErrNoEvaluator
		}
		return e, "js", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*model.exprEvaluator":
		return "expr"
	case "*model.celEvaluator":
		return "cel"
	case "*model.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
