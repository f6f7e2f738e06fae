package model

import "testing"

func TestPropertyIndexesConsecutiveAcrossChain(t *testing.T) {
	r := newShopRegistry(t)
	customer := mustResolve(t, r, "shop.Customer")
	vip := mustResolve(t, r, "shop.VIPCustomer")

	if got := customer.PropertyCount(); got != 2 {
		t.Fatalf("expected two customer properties, got %d", got)
	}
	if got := vip.PropertyCount(); got != 3 {
		t.Fatalf("expected three effective vip properties, got %d", got)
	}

	for i, p := range vip.Properties() {
		if p.Index() != i {
			t.Fatalf("expected property %q at index %d, got %d", p.Name(), i, p.Index())
		}
	}
	tier := valueProp(t, vip, "tier")
	if tier.Index() != customer.PropertyCount() {
		t.Fatalf("expected tier index to start at base count, got %d", tier.Index())
	}
	if tier.DeclaringType() != vip {
		t.Fatalf("expected tier declared on shop.VIPCustomer")
	}
}

func TestPropertyLookupWalksBaseChain(t *testing.T) {
	r := newShopRegistry(t)
	vip := mustResolve(t, r, "shop.VIPCustomer")

	name, ok := vip.Property("name")
	if !ok {
		t.Fatalf("expected inherited property visible on sub-type")
	}
	if name.DeclaringType().Name() != "shop.Customer" {
		t.Fatalf("expected name declared on shop.Customer, got %s", name.DeclaringType().Name())
	}
	if _, ok := vip.Property("missing"); ok {
		t.Fatalf("expected lookup miss for unknown property")
	}
	if _, ok := vip.ValueProperty("watchers"); ok {
		t.Fatalf("expected value lookup to reject properties of other types")
	}
}

func TestOwnPropertiesExcludeInherited(t *testing.T) {
	r := newShopRegistry(t)
	vip := mustResolve(t, r, "shop.VIPCustomer")

	own := vip.OwnProperties()
	if len(own) != 1 || own[0].Name() != "tier" {
		t.Fatalf("expected only tier declared on vip, got %v", own)
	}
}

func TestIsWalksChainTransitively(t *testing.T) {
	r := newShopRegistry(t)
	customer := mustResolve(t, r, "shop.Customer")
	vip := mustResolve(t, r, "shop.VIPCustomer")
	product := mustResolve(t, r, "shop.Product")

	if !vip.Is(customer) || !vip.Is(vip) {
		t.Fatalf("expected sub-type relation to hold")
	}
	if customer.Is(vip) || product.Is(customer) {
		t.Fatalf("expected unrelated types to fail Is")
	}
}

func TestSubTypesGrowLazily(t *testing.T) {
	r := newShopRegistry(t)
	customer := mustResolve(t, r, "shop.Customer")

	if subs := customer.SubTypes(); subs != nil {
		t.Fatalf("expected no sub-types before resolving them, got %v", subs)
	}
	vip := mustResolve(t, r, "shop.VIPCustomer")
	subs := customer.SubTypes()
	if len(subs) != 1 || subs[0] != vip {
		t.Fatalf("expected vip registered as sub-type, got %v", subs)
	}

	// The returned slice is a snapshot.
	subs[0] = nil
	if again := customer.SubTypes(); again[0] != vip {
		t.Fatalf("expected internal sub-type list unaffected by caller mutation")
	}
}

func TestAttributeLookupAndOverride(t *testing.T) {
	r := newShopRegistry(t)
	vip := mustResolve(t, r, "shop.VIPCustomer")

	if got, ok := vip.Attribute("icon"); !ok || got != "person" {
		t.Fatalf("expected inherited icon attribute, got %v %v", got, ok)
	}
	if got, ok := vip.Attribute("kind"); !ok || got != "vip" {
		t.Fatalf("expected declaring attribute to win, got %v %v", got, ok)
	}

	effective := vip.EffectiveAttributes()
	if effective["icon"] != "person" || effective["kind"] != "vip" {
		t.Fatalf("unexpected effective attributes: %v", effective)
	}

	base, _ := r.Lookup("shop.Customer")
	if got, _ := base.Attribute("kind"); got != "contact" {
		t.Fatalf("expected base attributes untouched, got %v", got)
	}
}

func TestSourceInheritedFromBase(t *testing.T) {
	r := New(WithProvider(newSpecProvider(true,
		TypeSpec{
			Name:       "doc.Node",
			Source:     mapSource{},
			Properties: []PropertySpec{{Name: "title"}},
		},
		TypeSpec{
			Name:       "doc.Page",
			Base:       "doc.Node",
			Properties: []PropertySpec{{Name: "body"}},
		},
	)))

	page := mustResolve(t, r, "doc.Page")
	if page.Source() == nil {
		t.Fatalf("expected sub-type to inherit the base property source")
	}
}

func TestLabelDerivation(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"name", "Name"},
		{"orderTotal", "Order Total"},
		{"HTTPServer", "HTTP Server"},
		{"VIPCustomer", "VIP Customer"},
		{"line2", "Line 2"},
		{"sku", "Sku"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := labelFromName(tc.name); got != tc.want {
			t.Fatalf("labelFromName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTypeLabelsAndExplicitOverride(t *testing.T) {
	r := newShopRegistry(t)

	vip := mustResolve(t, r, "shop.VIPCustomer")
	if vip.Label() != "VIP Customer" {
		t.Fatalf("expected derived type label, got %q", vip.Label())
	}

	r2 := New(WithProvider(NewMapProvider().MarkCacheable().
		Define(TypeSpec{Name: "x.Thing", Label: "A Thing"})))
	thing := mustResolve(t, r2, "x.Thing")
	if thing.Label() != "A Thing" {
		t.Fatalf("expected explicit label kept, got %q", thing.Label())
	}
}

func TestPropertyLabelExplicitOverride(t *testing.T) {
	r := New(WithProvider(NewMapProvider().MarkCacheable().
		Define(TypeSpec{
			Name: "x.Thing",
			Properties: []PropertySpec{
				{Name: "unitPrice"},
				{Name: "qty", Label: "Quantity"},
			},
		})))
	thing := mustResolve(t, r, "x.Thing")

	if got := valueProp(t, thing, "unitPrice").Label(); got != "Unit Price" {
		t.Fatalf("expected derived property label, got %q", got)
	}
	if got := valueProp(t, thing, "qty").Label(); got != "Quantity" {
		t.Fatalf("expected explicit property label kept, got %q", got)
	}
}

func TestPropertyFlagsCarried(t *testing.T) {
	r := New(WithProvider(NewMapProvider().MarkCacheable().
		Define(TypeSpec{
			Name: "x.Flagged",
			Properties: []PropertySpec{
				{Name: "serial", ReadOnly: true, Static: true, Persisted: true,
					Attributes: map[string]any{"type": "string"}},
			},
		})))
	flagged := mustResolve(t, r, "x.Flagged")
	serial := valueProp(t, flagged, "serial")

	if !serial.IsReadOnly() || !serial.IsStatic() || !serial.IsPersisted() || serial.IsList() {
		t.Fatalf("unexpected flags on serial: %+v", serial)
	}
	if got, ok := serial.Attribute("type"); !ok || got != "string" {
		t.Fatalf("expected property attribute carried, got %v %v", got, ok)
	}
}
