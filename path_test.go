package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepView is the comparable shape of a compiled step for structural diffs.
type stepView struct {
	Property string
	Filter   string
	List     bool
}

func stepViews(p *Path) []stepView {
	var out []stepView
	for _, s := range p.Steps() {
		view := stepView{Property: s.Property().Name(), List: s.Property().IsList()}
		if s.Filter() != nil {
			view.Filter = s.Filter().Name()
		}
		out = append(out, view)
	}
	return out
}

func TestPathCompileStructure(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	path, err := order.Path("items.product.name")
	require.NoError(t, err)
	require.Equal(t, order, path.Root())
	require.Equal(t, "items.product.name", path.String())

	want := []stepView{
		{Property: "items", List: true},
		{Property: "product"},
		{Property: "name"},
	}
	if diff := cmp.Diff(want, stepViews(path)); diff != "" {
		t.Fatalf("unexpected step structure (-want +got):\n%s", diff)
	}
}

func TestPathCompileCachedPerRootType(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	first, err := order.Path("items.product.name")
	require.NoError(t, err)
	second, err := order.Path("items.product.name")
	require.NoError(t, err)
	assert.Same(t, first, second, "expected cached *Path")
	assert.Equal(t, 1, order.pathCompiles, "expected a single compilation")
}

func TestInvalidPathCachedWithoutRecompiling(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	_, err1 := order.Path("items.nope")
	require.Error(t, err1)
	_, err2 := order.Path("items.nope")
	require.Error(t, err2)
	assert.Equal(t, 1, order.pathCompiles, "expected the failure to be cached")
	assert.ErrorIs(t, err1, ErrInvalidPath)

	var pathErr *PathError
	require.ErrorAs(t, err1, &pathErr)
	assert.Equal(t, "shop.Order", pathErr.TypeName)
	assert.Equal(t, "items.nope", pathErr.Path)
	assert.Equal(t, "nope", pathErr.Segment)
}

func TestSharedPathCacheOption(t *testing.T) {
	cache := newMapCache()
	r := newShopRegistry(t, WithPathCache(cache))
	order := mustResolve(t, r, "shop.Order")

	first, err := order.Path("customer.name")
	require.NoError(t, err)
	second, err := order.Path("customer.name")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, order.pathCompiles)
	_, ok := cache.Get("shop.Order\x00customer.name")
	assert.True(t, ok, "expected the shared cache to hold the entry")
}

func TestPathCompileErrors(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	cases := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"unknown root property", "nothing"},
		{"value property traversed", "total.items"},
		{"filter on value property", "total<shop.Item>"},
		{"unknown filter", "customer<shop.Ghost>.name"},
		{"filter not a sub-type", "customer<shop.Product>.name"},
		{"stray close", "customer>.name"},
		{"unterminated filter", "customer<shop.VIPCustomer.name"},
		{"empty filter", "customer<>.name"},
		{"filter without property", "<shop.Customer>.name"},
		{"unterminated branch", "customer{name"},
		{"empty branch element", "customer{name,}"},
		{"branch on value property", "total{status}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := order.Path(tc.path)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestPathFilterNarrowsTraversal(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	path, err := order.Path("watchers<shop.VIPCustomer>.tier")
	require.NoError(t, err)

	views := stepViews(path)
	require.Len(t, views, 2)
	assert.Equal(t, "shop.VIPCustomer", views[0].Filter)
}

func TestPathBranchLeaves(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	path, err := order.Path("customer{name,email}")
	require.NoError(t, err)

	want := []stepView{
		{Property: "customer"},
		{Property: "name"},
		{Property: "email"},
	}
	if diff := cmp.Diff(want, stepViews(path)); diff != "" {
		t.Fatalf("unexpected branch structure (-want +got):\n%s", diff)
	}
}

// newOrderGraph builds one order with two items pointing at distinct products.
func newOrderGraph(t *testing.T, r *Registry) (order, item1, item2, prod1, prod2 *Instance) {
	t.Helper()
	order = mustCreate(t, r, "shop.Order", "order-1")
	item1 = mustCreate(t, r, "shop.Item", "item-1")
	item2 = mustCreate(t, r, "shop.Item", "item-2")
	prod1 = mustCreate(t, r, "shop.Product", "prod-1")
	prod2 = mustCreate(t, r, "shop.Product", "prod-2")

	mustAdd(t, order, "items", item1)
	mustAdd(t, order, "items", item2)
	mustSetRef(t, item1, "product", prod1)
	mustSetRef(t, item2, "product", prod2)
	return order, item1, item2, prod1, prod2
}

func TestInstancesForwardWalk(t *testing.T) {
	r := newShopRegistry(t)
	order, _, item2, prod1, prod2 := newOrderGraph(t, r)

	path, err := order.Type().Path("items.product")
	require.NoError(t, err)

	got, err := path.Instances(order)
	require.NoError(t, err)
	assert.Equal(t, []*Instance{prod1, prod2}, got)

	// A shared target appears once.
	mustSetRef(t, item2, "product", prod1)
	got, err = path.Instances(order)
	require.NoError(t, err)
	assert.Equal(t, []*Instance{prod1}, got)
}

func TestInstancesSkipsMissingLinks(t *testing.T) {
	r := newShopRegistry(t)
	order, _, item2, prod1, _ := newOrderGraph(t, r)
	mustSetRef(t, item2, "product", nil)

	path, err := order.Type().Path("items.product")
	require.NoError(t, err)
	got, err := path.Instances(order)
	require.NoError(t, err)
	assert.Equal(t, []*Instance{prod1}, got)
}

func TestInstancesValueLeafKeepsOwners(t *testing.T) {
	r := newShopRegistry(t)
	order, item1, item2, _, _ := newOrderGraph(t, r)

	path, err := order.Type().Path("items.quantity")
	require.NoError(t, err)
	got, err := path.Instances(order)
	require.NoError(t, err)
	assert.Equal(t, []*Instance{item1, item2}, got)
}

func TestInstancesAppliesFilter(t *testing.T) {
	r := newShopRegistry(t)
	order := mustCreate(t, r, "shop.Order", "order-1")
	plain := mustCreate(t, r, "shop.Customer", "cust-1")
	vip := mustCreate(t, r, "shop.VIPCustomer", "vip-1")
	mustAdd(t, order, "watchers", plain)
	mustAdd(t, order, "watchers", vip)

	path, err := order.Type().Path("watchers<shop.VIPCustomer>")
	require.NoError(t, err)
	got, err := path.Instances(order)
	require.NoError(t, err)
	assert.Equal(t, []*Instance{vip}, got)
}

func TestInstancesWrongRootIsEmpty(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")
	product := mustCreate(t, r, "shop.Product", "prod-1")

	path, err := order.Path("items.product")
	require.NoError(t, err)
	got, err := path.Instances(product)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func subscribeRoots(t *testing.T, path *Path) (*[]string, *PathSubscription) {
	t.Helper()
	var roots []string
	sub := path.Subscribe(func(root *Instance, change Event) error {
		roots = append(roots, root.ID())
		return nil
	})
	return &roots, sub
}

func TestSubscribeNotifiesOnLeafChange(t *testing.T) {
	r := newShopRegistry(t)
	order, _, _, prod1, _ := newOrderGraph(t, r)

	path, err := order.Type().Path("items.product.name")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	mustSet(t, prod1, "name", "Widget")
	assert.Equal(t, []string{"order-1"}, *roots)
}

func TestSubscribeNotifiesOnIntermediateHop(t *testing.T) {
	r := newShopRegistry(t)
	order, item1, _, _, _ := newOrderGraph(t, r)

	path, err := order.Type().Path("items.product.name")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	prod3 := mustCreate(t, r, "shop.Product", "prod-3")
	mustSetRef(t, item1, "product", prod3)
	assert.Equal(t, []string{"order-1"}, *roots, "re-pointing an intermediate hop is a visible change")
}

func TestSubscribeSeesPostChangeState(t *testing.T) {
	r := newShopRegistry(t)
	order, item1, item2, _, _ := newOrderGraph(t, r)
	mustSetRef(t, item2, "product", nil)

	path, err := order.Type().Path("items.product")
	require.NoError(t, err)

	prod3 := mustCreate(t, r, "shop.Product", "prod-3")
	var observed []*Instance
	path.Subscribe(func(root *Instance, change Event) error {
		resolved, err := path.Instances(root)
		if err != nil {
			return err
		}
		observed = resolved
		return nil
	})

	mustSetRef(t, item1, "product", prod3)
	assert.Equal(t, []*Instance{prod3}, observed, "observer must see the re-linked graph")
}

func TestDiamondGraphNotifiesRootOnce(t *testing.T) {
	r := newShopRegistry(t)
	order, _, item2, prod1, _ := newOrderGraph(t, r)
	// Both items converge on one product: a diamond from the order's view.
	mustSetRef(t, item2, "product", prod1)

	path, err := order.Type().Path("items.product.name")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	mustSet(t, prod1, "name", "Widget")
	assert.Equal(t, []string{"order-1"}, *roots, "a diamond must not duplicate notifications")
}

func TestSharedIntermediateNotifiesEachRootOnce(t *testing.T) {
	r := newShopRegistry(t)
	item := mustCreate(t, r, "shop.Item", "item-1")
	prod := mustCreate(t, r, "shop.Product", "prod-1")
	mustSetRef(t, item, "product", prod)

	order1 := mustCreate(t, r, "shop.Order", "order-1")
	order2 := mustCreate(t, r, "shop.Order", "order-2")
	mustAdd(t, order1, "items", item)
	mustAdd(t, order2, "items", item)

	path, err := order1.Type().Path("items.product.name")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	mustSet(t, prod, "name", "Widget")
	assert.ElementsMatch(t, []string{"order-1", "order-2"}, *roots)
}

func TestBrokenChainNotVisible(t *testing.T) {
	r := newShopRegistry(t)
	order := mustResolve(t, r, "shop.Order")

	// A product no order references through the watched chain.
	stray := mustCreate(t, r, "shop.Product", "prod-stray")

	path, err := order.Path("items.product.name")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	mustSet(t, stray, "name", "Gadget")
	assert.Empty(t, *roots)
}

func TestBackwardWalkRespectsFilter(t *testing.T) {
	r := newShopRegistry(t)
	order := mustCreate(t, r, "shop.Order", "order-1")
	plain := mustCreate(t, r, "shop.Customer", "cust-1")
	vip := mustCreate(t, r, "shop.VIPCustomer", "vip-1")
	mustAdd(t, order, "watchers", plain)
	mustAdd(t, order, "watchers", vip)

	path, err := order.Type().Path("watchers<shop.VIPCustomer>.name")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	mustSet(t, plain, "name", "Alice")
	assert.Empty(t, *roots, "filtered-out instances are invisible to the path")

	mustSet(t, vip, "name", "Bob")
	assert.Equal(t, []string{"order-1"}, *roots)
}

func TestBranchLeavesWatched(t *testing.T) {
	r := newShopRegistry(t)
	order := mustCreate(t, r, "shop.Order", "order-1")
	cust := mustCreate(t, r, "shop.Customer", "cust-1")
	mustSetRef(t, order, "customer", cust)

	path, err := order.Type().Path("customer{name,email}")
	require.NoError(t, err)
	roots, _ := subscribeRoots(t, path)

	mustSet(t, cust, "name", "Alice")
	mustSet(t, cust, "email", "alice@example.com")
	assert.Equal(t, []string{"order-1", "order-1"}, *roots, "each branch leaf is watched")
}

func TestSubscriptionCancel(t *testing.T) {
	r := newShopRegistry(t)
	order, _, _, prod1, _ := newOrderGraph(t, r)

	path, err := order.Type().Path("items.product.name")
	require.NoError(t, err)
	roots, sub := subscribeRoots(t, path)

	mustSet(t, prod1, "name", "Widget")
	sub.Cancel()
	sub.Cancel() // idempotent
	mustSet(t, prod1, "name", "Gadget")
	assert.Equal(t, []string{"order-1"}, *roots)
}

func TestObserverErrorsSurfaceFromMutation(t *testing.T) {
	r := newShopRegistry(t)
	order, _, _, prod1, _ := newOrderGraph(t, r)

	path, err := order.Type().Path("items.product.name")
	require.NoError(t, err)
	observerErr := errors.New("observer rejected")
	path.Subscribe(func(root *Instance, change Event) error {
		return observerErr
	})

	err = prod1.Set(valueProp(t, prod1.Type(), "name"), "Widget")
	assert.ErrorIs(t, err, observerErr)

	// The write itself already happened; only the notification failed.
	got := mustGet(t, prod1, "name")
	assert.Equal(t, "Widget", got)
}

func TestNilObserverIgnored(t *testing.T) {
	r := newShopRegistry(t)
	order, _, _, prod1, _ := newOrderGraph(t, r)

	path, err := order.Type().Path("items.product.name")
	require.NoError(t, err)
	sub := path.Subscribe(nil)
	require.NotNil(t, sub)
	sub.Cancel()

	mustSet(t, prod1, "name", "Widget")
}
