package model

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-metamodel/pkg/activity"
)

// cacheableSeq feeds synthetic identifiers for instances of cacheable types.
// It is shared across registries so ids stay unique when descriptors outlive
// a single registry.
var cacheableSeq atomic.Uint64

// Registry owns the resolved type table for one object graph. A registry
// serves a single logical writer at a time; hand-off between writers must be
// whole-registry.
type Registry struct {
	cfg       registryConfig
	providers []TypeProvider

	types     map[string]*Type
	pending   map[string]TypeSpec
	queue     []*Type
	journal   []func()
	transient []string
	depth     int

	instances map[string]*Instance
	localSeq  uint64

	observers    map[Property][]*pathObserver
	calculations []*calculation
	typeInit     []func(*Type)

	emitter  *activity.Emitter
	scope    *EventScope
	recorder *txRecorder
}

// New constructs a registry. Providers registered through options are
// consulted most-recently-added first, matching RegisterProvider.
func New(opts ...Option) *Registry {
	cfg := applyOptions(opts)
	r := &Registry{
		cfg:       cfg,
		providers: cfg.providers,
		types:     map[string]*Type{},
		pending:   map[string]TypeSpec{},
		instances: map[string]*Instance{},
		observers: map[Property][]*pathObserver{},
	}
	r.emitter = activity.NewEmitter(cfg.activityHooks, activity.Config{
		Enabled: true,
		Channel: cfg.activityChannel,
	})
	return r
}

// RegisterProvider adds a type provider. Later registrations take precedence
// over earlier ones during resolution.
func (r *Registry) RegisterProvider(provider TypeProvider) {
	if provider == nil {
		return
	}
	r.providers = append(r.providers, provider)
}

// OnTypeInitialized registers a handler invoked after a type finishes
// initialization. Handlers run once per type, after the whole resolution
// burst that discovered it succeeds.
func (r *Registry) OnTypeInitialized(fn func(*Type)) {
	if fn != nil {
		r.typeInit = append(r.typeInit, fn)
	}
}

// Lookup returns an already initialized type without triggering resolution.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.types[name]
	if !ok || !t.initialized {
		return nil, false
	}
	return t, true
}

// Resolve returns the type registered under name, materializing it through
// the providers on first use. Types referenced transitively during
// initialization are initialized in discovery order before Resolve returns;
// if any of them fails, every descriptor created by this call is discarded
// and the failure is returned. Unknown names report ErrUnknownType.
func (r *Registry) Resolve(name string) (*Type, error) {
	r.depth++
	defer r.leaveResolve()
	t, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	if r.depth == 1 {
		if err := r.drain(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ResolveFor resolves the type for a live backing value by asking each
// provider to name it.
func (r *Registry) ResolveFor(value any) (*Type, error) {
	for i := len(r.providers) - 1; i >= 0; i-- {
		if name, ok := r.providers[i].TypeName(value); ok {
			return r.Resolve(name)
		}
	}
	return nil, fmt.Errorf("%w: no provider recognizes %T", ErrUnknownType, value)
}

// ResolveKind resolves the type for a static kind identifier.
func (r *Registry) ResolveKind(kind string) (*Type, error) {
	for i := len(r.providers) - 1; i >= 0; i-- {
		if name, ok := r.providers[i].TypeNameForKind(kind); ok {
			return r.Resolve(name)
		}
	}
	return nil, fmt.Errorf("%w: no provider recognizes kind %q", ErrUnknownType, kind)
}

// Types returns the initialized types, sorted by name.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		if t.initialized {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Registry) resolve(name string) (*Type, error) {
	if t, ok := r.types[name]; ok {
		return t, nil
	}
	spec, provider, ok := r.describe(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	if spec.Name != "" && spec.Name != name {
		return nil, fmt.Errorf("model: provider described %q when asked for %q", spec.Name, name)
	}
	t := &Type{
		registry:  r,
		provider:  provider,
		source:    spec.Source,
		name:      name,
		label:     typeLabel(spec),
		format:    spec.Format,
		baseName:  spec.Base,
		attrs:     cloneAttrs(spec.Attributes),
		newValue:  spec.New,
		cacheable: provider.Cacheable(),
		byName:    map[string]Property{},
	}
	r.types[name] = t
	r.pending[name] = spec
	r.queue = append(r.queue, t)
	r.journal = append(r.journal, func() {
		delete(r.types, name)
		delete(r.pending, name)
	})
	if !t.cacheable {
		r.transient = append(r.transient, name)
	}
	return t, nil
}

func (r *Registry) describe(name string) (TypeSpec, TypeProvider, bool) {
	for i := len(r.providers) - 1; i >= 0; i-- {
		if spec, ok := r.providers[i].DescribeType(name); ok {
			return spec, r.providers[i], true
		}
	}
	return TypeSpec{}, nil, false
}

// drain initializes queued types first-in first-out. Base types initialize
// eagerly ahead of their sub-types because property indexes depend on the
// base's property count. Failure excises the whole burst: every type created
// since the outermost Resolve entered disappears before the error returns.
func (r *Registry) drain() error {
	var done []*Type
	for len(r.queue) > 0 {
		t := r.queue[0]
		r.queue = r.queue[1:]
		if err := r.initialize(t, &done); err != nil {
			r.rollbackBurst()
			return fmt.Errorf("model: initialize type %q: %w", t.name, err)
		}
	}
	r.journal = nil
	for _, t := range done {
		for _, fn := range r.typeInit {
			fn(t)
		}
	}
	return nil
}

func (r *Registry) initialize(t *Type, done *[]*Type) error {
	if t.initialized {
		return nil
	}
	if t.initializing {
		return fmt.Errorf("inheritance cycle through %q", t.name)
	}
	t.initializing = true
	defer func() { t.initializing = false }()

	spec, ok := r.pending[t.name]
	if !ok {
		return fmt.Errorf("no pending descriptor for %q", t.name)
	}
	delete(r.pending, t.name)

	if t.baseName != "" {
		base, err := r.resolve(t.baseName)
		if err != nil {
			return err
		}
		if err := r.initialize(base, done); err != nil {
			return err
		}
		t.base = base
		base.appendSubType(t)
		r.journal = append(r.journal, func() { base.removeSubType(t) })
	}

	next := t.PropertyCount()
	for _, ps := range spec.Properties {
		if ps.Name == "" {
			return fmt.Errorf("property without a name")
		}
		if _, exists := t.Property(ps.Name); exists {
			return fmt.Errorf("duplicate property %q", ps.Name)
		}
		var target *Type
		if ps.IsReference() {
			resolved, err := r.resolve(ps.Target)
			if err != nil {
				return fmt.Errorf("property %q: %w", ps.Name, err)
			}
			target = resolved
		}
		p := buildProperty(ps, t, next, target)
		next++
		t.properties = append(t.properties, p)
		t.byName[ps.Name] = p
	}

	t.initialized = true
	*done = append(*done, t)
	return nil
}

func (r *Registry) rollbackBurst() {
	for i := len(r.journal) - 1; i >= 0; i-- {
		r.journal[i]()
	}
	r.journal = nil
	r.queue = nil
}

func (r *Registry) leaveResolve() {
	r.depth--
	if r.depth > 0 {
		return
	}
	// Descriptors from non-cacheable providers only live for the outermost
	// resolution that created them.
	for _, name := range r.transient {
		delete(r.types, name)
	}
	r.transient = nil
}

// Create builds a new instance of the named type with a synthetic
// identifier.
func (r *Registry) Create(name string) (*Instance, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return r.createInstance(t, r.nextID(t))
}

// CreateWithID builds a new instance under an explicit identifier. Transaction
// replay uses this to materialize placeholders for ids it has not seen.
func (r *Registry) CreateWithID(name, id string) (*Instance, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if existing, ok := r.instances[id]; ok {
		return existing, nil
	}
	return r.createInstance(t, id)
}

// Wrap binds an existing backing value to an instance with a synthetic
// identifier. Each call wraps anew; use WrapWithID when the value has a
// stable identity.
func (r *Registry) Wrap(value any) (*Instance, error) {
	t, err := r.ResolveFor(value)
	if err != nil {
		return nil, err
	}
	inst := newInstance(r, t, r.nextID(t), value)
	r.instances[inst.id] = inst
	return inst, nil
}

// WrapWithID binds an existing backing value under an explicit identifier,
// returning the already wrapped instance when the id is known.
func (r *Registry) WrapWithID(value any, id string) (*Instance, error) {
	if existing, ok := r.instances[id]; ok {
		return existing, nil
	}
	t, err := r.ResolveFor(value)
	if err != nil {
		return nil, err
	}
	inst := newInstance(r, t, id, value)
	r.instances[id] = inst
	return inst, nil
}

// Instance looks up an instance by identifier.
func (r *Registry) Instance(id string) (*Instance, bool) {
	inst, ok := r.instances[id]
	return inst, ok
}

func (r *Registry) createInstance(t *Type, id string) (*Instance, error) {
	if t.newValue == nil {
		return nil, fmt.Errorf("model: type %q declares no backing factory", t.name)
	}
	inst := newInstance(r, t, id, t.newValue())
	r.instances[id] = inst
	return inst, nil
}

// nextID assigns a synthetic identifier. Cacheable types draw from the
// cross-registry counter, non-cacheable types from the per-registry one; the
// prefixes keep the two id spaces from colliding.
func (r *Registry) nextID(t *Type) string {
	if t.cacheable {
		return fmt.Sprintf("+%d", cacheableSeq.Add(1))
	}
	r.localSeq++
	return fmt.Sprintf("?%d", r.localSeq)
}

func (r *Registry) forget(inst *Instance) {
	delete(r.instances, inst.id)
}

func (r *Registry) eventLogger() EventLogger {
	if r.cfg.eventLogger != nil {
		return r.cfg.eventLogger
	}
	return noopEventLogger{}
}

func (r *Registry) evaluatorLogger() EvaluatorLogger {
	if r.cfg.evalLogger != nil {
		return r.cfg.evalLogger
	}
	return noopEvaluatorLogger{}
}

func (r *Registry) now() time.Time {
	if r.cfg.clock != nil {
		return r.cfg.clock()
	}
	return time.Now()
}
