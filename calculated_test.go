package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculationRecalculatesOnDependencyChange(t *testing.T) {
	r := newShopRegistry(t)
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "quantity", 3)
	mustSet(t, item, "price", 2.5)

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "quantity * price",
		DependsOn: []string{"quantity", "price"},
	}))

	mustSet(t, item, "price", 4.0)
	assert.EqualValues(t, 12.0, mustGet(t, item, "subtotal"))

	mustSet(t, item, "quantity", 5)
	assert.EqualValues(t, 20.0, mustGet(t, item, "subtotal"))
}

func TestCalculationIgnoresUnrelatedChanges(t *testing.T) {
	evals := 0
	r := newShopRegistry(t, WithEvaluatorLogger(EvaluatorLoggerFunc(func(EvaluatorLogEvent) {
		evals++
	})))
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "quantity", 3)
	mustSet(t, item, "price", 2.5)

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "quantity * price",
		DependsOn: []string{"quantity", "price"},
	}))
	require.Zero(t, evals, "registration alone must not evaluate")

	mustSet(t, item, "note", "gift")
	assert.Zero(t, evals, "changes outside the dependency paths must not evaluate")

	mustSet(t, item, "quantity", 4)
	assert.Equal(t, 1, evals)
}

func TestCalculationAcrossPaths(t *testing.T) {
	r := newShopRegistry(t)
	order, item1, _, _, _ := newOrderGraph(t, r)

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Order",
		Property:  "status",
		Expr:      `"dirty"`,
		DependsOn: []string{"items.quantity"},
	}))

	mustSet(t, item1, "quantity", 5)
	assert.Equal(t, "dirty", mustGet(t, order, "status"),
		"a change deep in the dependency path must reach the root")
}

func TestCalculationSelfDependencyEvaluatesOnce(t *testing.T) {
	evals := 0
	r := newShopRegistry(t, WithEvaluatorLogger(EvaluatorLoggerFunc(func(EvaluatorLogEvent) {
		evals++
	})))
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "quantity", 3)

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "quantity",
		Expr:      "quantity * 2",
		DependsOn: []string{"quantity"},
	}))

	mustSet(t, item, "quantity", 4)
	assert.EqualValues(t, 8, mustGet(t, item, "quantity"))
	assert.Equal(t, 1, evals, "the assignment must not re-trigger its own evaluation")
}

func TestAddCalculationValidation(t *testing.T) {
	r := newShopRegistry(t)

	cases := []struct {
		name string
		calc Calculation
		want string
	}{
		{
			name: "empty expression",
			calc: Calculation{Type: "shop.Item", Property: "subtotal", DependsOn: []string{"quantity"}},
			want: "has no expression",
		},
		{
			name: "no dependencies",
			calc: Calculation{Type: "shop.Item", Property: "subtotal", Expr: "1"},
			want: "has no dependency paths",
		},
		{
			name: "non-value target",
			calc: Calculation{Type: "shop.Order", Property: "items", Expr: "1", DependsOn: []string{"total"}},
			want: "is not a value property",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.AddCalculation(tc.calc)
			assert.ErrorContains(t, err, tc.want)
		})
	}

	err := r.AddCalculation(Calculation{
		Type: "shop.Ghost", Property: "x", Expr: "1", DependsOn: []string{"y"},
	})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestAddCalculationRejectsReadOnlyTarget(t *testing.T) {
	r := New(WithProvider(NewMapProvider().MarkCacheable().
		Define(TypeSpec{
			Name: "meter.Reading",
			Properties: []PropertySpec{
				{Name: "raw"},
				{Name: "sealed", ReadOnly: true},
			},
		})))

	err := r.AddCalculation(Calculation{
		Type:      "meter.Reading",
		Property:  "sealed",
		Expr:      "raw",
		DependsOn: []string{"raw"},
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestAddCalculationBadPathUnwinds(t *testing.T) {
	r := newShopRegistry(t)

	err := r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "quantity * price",
		DependsOn: []string{"quantity", "missing.path"},
	})
	require.ErrorIs(t, err, ErrInvalidPath)
	assert.Empty(t, r.observers, "partial subscriptions must unwind")
	assert.Empty(t, r.calculations)
}

func TestAddCalculationBadExpression(t *testing.T) {
	r := newShopRegistry(t)

	err := r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "1 +++",
		DependsOn: []string{"quantity"},
	})
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "expr", evalErr.Engine)
	assert.Equal(t, "shop.Item.subtotal", evalErr.Target)
}

func TestCalculationRuntimeFailureSurfacesFromWrite(t *testing.T) {
	r := newShopRegistry(t)
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "note", "gift")

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "note * 2",
		DependsOn: []string{"note"},
	}))

	err := item.Set(valueProp(t, item.Type(), "note"), "updated")
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "expr", evalErr.Engine)
	assert.Equal(t, "shop.Item.subtotal", evalErr.Target)

	// The write itself persisted; only the derived assignment failed.
	assert.Equal(t, "updated", mustGet(t, item, "note"))
}

func TestRecalculateAppliesBaseCalculationsToSubTypes(t *testing.T) {
	r := newShopRegistry(t)
	vip := mustCreate(t, r, "shop.VIPCustomer", "vip-1")
	mustSet(t, vip, "name", "ada")

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Customer",
		Property:  "email",
		Expr:      `name + "@shop.test"`,
		DependsOn: []string{"name"},
	}))

	require.NoError(t, r.Recalculate(vip))
	assert.Equal(t, "ada@shop.test", mustGet(t, vip, "email"))

	// Types without registered calculations recalculate to a no-op.
	prod := mustCreate(t, r, "shop.Product", "prod-1")
	require.NoError(t, r.Recalculate(prod))
}

func TestEvaluateAdHoc(t *testing.T) {
	r := newShopRegistry(t)
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "quantity", 2)

	got, err := r.Evaluate(item, "quantity + 1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)

	_, err = r.Evaluate(item, "")
	assert.ErrorContains(t, err, "must not be empty")
}

func TestCalculationEngineCEL(t *testing.T) {
	r := newShopRegistry(t)
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "quantity", 2)
	mustSet(t, item, "price", 3)

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "quantity * price",
		DependsOn: []string{"quantity", "price"},
		Engine:    "cel",
	}))

	mustSet(t, item, "quantity", 4)
	assert.EqualValues(t, 12, mustGet(t, item, "subtotal"))
}

func TestDefaultEvaluatorOverride(t *testing.T) {
	var engines []string
	r := newShopRegistry(t,
		WithEvaluator(NewCELEvaluator()),
		WithEvaluatorLogger(EvaluatorLoggerFunc(func(e EvaluatorLogEvent) {
			engines = append(engines, e.Engine)
		})))
	item := mustCreate(t, r, "shop.Item", "item-1")
	mustSet(t, item, "quantity", 2)
	mustSet(t, item, "price", 3)

	require.NoError(t, r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "quantity * price",
		DependsOn: []string{"price"},
	}))

	mustSet(t, item, "price", 5)
	assert.EqualValues(t, 10, mustGet(t, item, "subtotal"))
	assert.Equal(t, []string{"cel"}, engines)
}

func TestCalculationEngineJSUnavailable(t *testing.T) {
	if jsEvaluatorAvailable() {
		t.Skip("js evaluator built in")
	}
	r := newShopRegistry(t)

	err := r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "1",
		DependsOn: []string{"quantity"},
		Engine:    "js",
	})
	require.ErrorIs(t, err, ErrUnknownEngine)
	assert.ErrorContains(t, err, "js evaluator not built")
}

func TestCalculationUnknownEngine(t *testing.T) {
	r := newShopRegistry(t)

	err := r.AddCalculation(Calculation{
		Type:      "shop.Item",
		Property:  "subtotal",
		Expr:      "1",
		DependsOn: []string{"quantity"},
		Engine:    "lua",
	})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}
