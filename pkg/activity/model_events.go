package activity

import (
	"strings"
	"time"
)

// ModelEventInput describes the common fields for model lifecycle events.
type ModelEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	Recipients []string
	Metadata   map[string]any
	TypeName   string
	InstanceID string
	Property   string
	OldValue   any
	NewValue   any
	Added      []string
	Removed    []string
	OccurredAt time.Time
}

// BuildChangedEvent constructs a normalized activity event for a value or
// reference change.
func BuildChangedEvent(input ModelEventInput) Event {
	return buildModelEvent("model.changed", input)
}

// BuildListChangedEvent constructs a normalized activity event for a list
// membership change.
func BuildListChangedEvent(input ModelEventInput) Event {
	return buildModelEvent("model.list.changed", input)
}

// BuildSavedEvent constructs a normalized activity event for an instance save.
func BuildSavedEvent(input ModelEventInput) Event {
	return buildModelEvent("model.saved", input)
}

// BuildDeletedEvent constructs a normalized activity event for an instance
// deletion.
func BuildDeletedEvent(input ModelEventInput) Event {
	return buildModelEvent("model.deleted", input)
}

func buildModelEvent(verb string, input ModelEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Property != "" {
		metadata = ensureMetadata(metadata)
		metadata["property"] = input.Property
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}
	if len(input.Added) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["added"] = append([]string{}, input.Added...)
	}
	if len(input.Removed) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["removed"] = append([]string{}, input.Removed...)
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectType := strings.TrimSpace(input.TypeName)
	if objectType == "" {
		objectType = "model"
	}
	objectID := strings.TrimSpace(input.InstanceID)
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Recipients: recipients,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
