package model

import (
	"time"

	"github.com/goliatone/go-metamodel/pkg/activity"
)

// TypeProvider materializes type descriptors for the names it owns. Providers
// are consulted most-recently-registered first and are never called
// concurrently for the same registry.
type TypeProvider interface {
	// TypeName reports the registered type name for a live backing value.
	TypeName(value any) (string, bool)
	// TypeNameForKind reports the registered type name for a static kind
	// identifier (a reflected type name, an enum kind, a JSON discriminator).
	TypeNameForKind(kind string) (string, bool)
	// DescribeType returns the descriptor data for name. The second result is
	// false when the provider does not own the name.
	DescribeType(name string) (TypeSpec, bool)
	// Cacheable reports whether descriptors from this provider may outlive the
	// outermost resolution that created them.
	Cacheable() bool
}

// PropertySource reads and writes property state on the backing representation
// of an instance. The core never reflects into backing values; every access
// goes through the source declared by the instance's type.
type PropertySource interface {
	Value(inst *Instance, prop *ValueProperty) (any, error)
	SetValue(inst *Instance, prop *ValueProperty, value any) error
	Reference(inst *Instance, prop *ReferenceProperty) (*Instance, error)
	SetReference(inst *Instance, prop *ReferenceProperty, target *Instance) error
	List(inst *Instance, prop *ReferenceProperty) (InstanceList, error)
	FormattedValue(inst *Instance, prop Property, spec string) (string, error)
	Save(inst *Instance) error
	Delete(inst *Instance) error
}

// InstanceList is the mutable view a property source exposes for a list
// reference property.
type InstanceList interface {
	Len() int
	At(i int) *Instance
	Add(item *Instance) error
	Remove(item *Instance) error
}

// TypeSpec is the descriptor data a provider returns for one type name. The
// registry materializes it into a Type during initialization; specs that
// reference other types do so by name so that mutually referencing types can
// be described without ordering constraints.
type TypeSpec struct {
	Name       string
	Label      string
	Format     string
	Base       string
	Attributes map[string]any
	Properties []PropertySpec
	Source     PropertySource
	// New produces a fresh backing value for instances created through the
	// registry. Optional; types without it cannot be created, only wrapped.
	New func() any
}

// PropertySpec is the descriptor data for one property of a TypeSpec.
type PropertySpec struct {
	Name       string
	Label      string
	Target     string // reference target type name; empty for value properties
	List       bool
	Static     bool
	ReadOnly   bool
	Persisted  bool
	Attributes map[string]any
	// Convert normalizes assigned values to the property's canonical form.
	// Value properties only.
	Convert func(value any) (any, error)
}

// IsReference reports whether the spec declares a reference property.
func (p PropertySpec) IsReference() bool {
	return p.Target != ""
}

// EvalContext carries inputs needed when evaluating a calculation expression.
type EvalContext struct {
	Snapshot map[string]any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	Target   string
}

func (ctx EvalContext) withDefaultNow() EvalContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx EvalContext) withDefaultMaps() EvalContext {
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) targetLabel() string {
	if ctx.Target != "" {
		return ctx.Target
	}
	return "unknown"
}

// Evaluator executes expressions against an evaluation context.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx EvalContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures a Registry at construction time.
type Option func(*registryConfig)

type registryConfig struct {
	providers       []TypeProvider
	evaluator       Evaluator
	programCache    Cache
	pathCache       Cache
	formatCache     Cache
	functions       *FunctionRegistry
	evalLogger      EvaluatorLogger
	eventLogger     EventLogger
	schemaGen       SchemaGenerator
	activityHooks   activity.Hooks
	activityChannel string
	clock           func() time.Time
}

func applyOptions(opts []Option) registryConfig {
	cfg := registryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithProvider registers a type provider. Later registrations take precedence
// during resolution.
func WithProvider(provider TypeProvider) Option {
	return func(cfg *registryConfig) {
		if provider == nil {
			return
		}
		cfg.providers = append(cfg.providers, provider)
	}
}

// WithEvaluator configures the default calculation evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *registryConfig) {
		cfg.evaluator = e
	}
}

// WithFunctionRegistry exposes custom functions to calculation expressions.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *registryConfig) {
		cfg.functions = registry
	}
}

// WithClock overrides the registry's time source. Tests use this to pin
// timestamps on events and activity records.
func WithClock(clock func() time.Time) Option {
	return func(cfg *registryConfig) {
		cfg.clock = clock
	}
}

// WithSchemaGenerator configures a custom schema generator implementation.
func WithSchemaGenerator(generator SchemaGenerator) Option {
	return func(cfg *registryConfig) {
		cfg.schemaGen = generator
	}
}
