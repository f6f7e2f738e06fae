package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-metamodel/pkg/activity"
)

func TestActivityHooksReceiveMutationVerbs(t *testing.T) {
	hook := &activity.CaptureHook{}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newShopRegistry(t,
		WithActivityHooks(activity.Hooks{hook}),
		WithClock(func() time.Time { return at }),
	)

	order := mustCreate(t, r, "shop.Order", "order-1")
	cust := mustCreate(t, r, "shop.Customer", "cust-1")
	item := mustCreate(t, r, "shop.Item", "item-1")

	mustSet(t, order, "status", "placed")
	mustSetRef(t, order, "customer", cust)
	mustAdd(t, order, "items", item)
	require.NoError(t, order.Save())
	require.NoError(t, order.Delete())

	want := []string{"model.changed", "model.changed", "model.list.changed", "model.saved", "model.deleted"}
	assert.Equal(t, want, hook.Verbs())

	changed := hook.Events[0]
	assert.Equal(t, "shop.Order", changed.ObjectType)
	assert.Equal(t, "order-1", changed.ObjectID)
	assert.Equal(t, at, changed.OccurredAt)
	assert.Equal(t, "model", changed.Channel, "emitter stamps its default channel")
	assert.Equal(t, map[string]any{"property": "status", "new_value": "placed"}, changed.Metadata)

	relinked := hook.Events[1]
	assert.Equal(t, map[string]any{"property": "customer", "new_value": "cust-1"}, relinked.Metadata)

	listChanged := hook.Events[2]
	assert.Equal(t, map[string]any{"property": "items", "added": []string{"item-1"}}, listChanged.Metadata)

	saved := hook.Events[3]
	assert.Equal(t, "order-1", saved.ObjectID)
	assert.Nil(t, saved.Metadata)
}

func TestActivityChannelOverride(t *testing.T) {
	hook := &activity.CaptureHook{}
	r := newShopRegistry(t,
		WithActivityHooks(activity.Hooks{hook}),
		WithActivityChannel("audit"),
	)

	order := mustCreate(t, r, "shop.Order", "order-1")
	mustSet(t, order, "status", "placed")

	require.Len(t, hook.Events, 1)
	assert.Equal(t, "audit", hook.Events[0].Channel)
}

func TestActivityReferenceChangeCarriesOldTarget(t *testing.T) {
	hook := &activity.CaptureHook{}
	r := newShopRegistry(t, WithActivityHooks(activity.Hooks{hook}))

	order := mustCreate(t, r, "shop.Order", "order-1")
	first := mustCreate(t, r, "shop.Customer", "cust-1")
	second := mustCreate(t, r, "shop.Customer", "cust-2")

	mustSetRef(t, order, "customer", first)
	mustSetRef(t, order, "customer", second)

	require.Len(t, hook.Events, 2)
	assert.Equal(t, map[string]any{
		"property":  "customer",
		"old_value": "cust-1",
		"new_value": "cust-2",
	}, hook.Events[1].Metadata)
}

func TestActivityAccessAndCustomEmitNothing(t *testing.T) {
	hook := &activity.CaptureHook{}
	r := newShopRegistry(t, WithActivityHooks(activity.Hooks{hook}))

	order := mustCreate(t, r, "shop.Order", "order-1")
	mustGet(t, order, "status")
	require.NoError(t, NewCustomEvent(order, "audit", "checked").Notify())

	assert.Empty(t, hook.Events)
}

func TestActivityHooksCloneIndependence(t *testing.T) {
	hook := &activity.CaptureHook{}
	r := newShopRegistry(t, WithActivityHooks(activity.Hooks{nil, hook, nil}))

	got := r.ActivityHooks()
	require.Len(t, got, 1, "nil hooks are dropped at configuration")

	got[0] = nil
	again := r.ActivityHooks()
	require.Len(t, again, 1)
	assert.NotNil(t, again[0], "callers must not be able to mutate registry state")

	empty := newShopRegistry(t, WithActivityHooks(activity.Hooks{nil, nil}))
	assert.Nil(t, empty.ActivityHooks())

	var missing *Registry
	assert.Nil(t, missing.ActivityHooks())
}

func TestActivityHookErrorsSurfaceFromMutation(t *testing.T) {
	hook := &activity.CaptureHook{Err: assert.AnError}
	r := newShopRegistry(t, WithActivityHooks(activity.Hooks{hook}))

	order := mustCreate(t, r, "shop.Order", "order-1")
	err := order.Set(valueProp(t, order.Type(), "status"), "placed")
	assert.ErrorIs(t, err, assert.AnError)

	// The write happened; only the hook notification failed.
	assert.Equal(t, "placed", mustGet(t, order, "status"))
}
