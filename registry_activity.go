package model

import (
	"context"

	"github.com/goliatone/go-metamodel/pkg/activity"
)

// WithActivityHooks attaches activity hooks to the registry configuration.
// Hooks are cloned and nil entries dropped to preserve immutability.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *registryConfig) {
		cfg.activityHooks = normalized
	}
}

// WithActivityChannel sets the channel stamped on emitted activity records.
// Empty selects the emitter's default channel.
func WithActivityChannel(channel string) Option {
	return func(cfg *registryConfig) {
		cfg.activityChannel = channel
	}
}

// ActivityHooks returns a cloned slice of the activity hooks configured on
// the registry. The returned slice can be safely mutated by the caller.
func (r *Registry) ActivityHooks() activity.Hooks {
	if r == nil {
		return nil
	}
	return cloneActivityHooks(r.cfg.activityHooks)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

// emitActivity translates a mutation event into a normalized activity record
// and hands it to the emitter, which stamps the registry's channel. Access and
// custom events carry no mutation, so they emit nothing.
func (r *Registry) emitActivity(e Event) error {
	if !r.emitter.Enabled() {
		return nil
	}

	inst := e.Instance()
	input := activity.ModelEventInput{
		TypeName:   inst.typ.name,
		InstanceID: inst.id,
		OccurredAt: r.now(),
	}
	if prop := e.Property(); prop != nil {
		input.Property = prop.Name()
	}

	switch ev := e.(type) {
	case *ValueChangeEvent:
		input.OldValue = ev.OldValue()
		input.NewValue = ev.NewValue()
		return r.emitter.Emit(context.Background(), activity.BuildChangedEvent(input))
	case *ReferenceChangeEvent:
		input.OldValue = instanceIDOf(ev.OldTarget())
		input.NewValue = instanceIDOf(ev.NewTarget())
		return r.emitter.Emit(context.Background(), activity.BuildChangedEvent(input))
	case *ListChangeEvent:
		input.Added = instanceIDsOf(ev.Added())
		input.Removed = instanceIDsOf(ev.Removed())
		return r.emitter.Emit(context.Background(), activity.BuildListChangedEvent(input))
	case *SaveEvent:
		return r.emitter.Emit(context.Background(), activity.BuildSavedEvent(input))
	case *DeleteEvent:
		return r.emitter.Emit(context.Background(), activity.BuildDeletedEvent(input))
	default:
		return nil
	}
}

func instanceIDOf(inst *Instance) any {
	if inst == nil {
		return nil
	}
	return inst.id
}

func instanceIDsOf(instances []*Instance) []string {
	if len(instances) == 0 {
		return nil
	}
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.id
	}
	return ids
}
