package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrETagMismatch signals an optimistic concurrency conflict on publish.
var ErrETagMismatch = errors.New("sync: etag mismatch")

// Log is one stored transaction payload in its raw JSON-object form. Stores
// move Logs around without interpreting them; the synchronizer decodes them
// into envelopes.
type Log map[string]any

// Ref identifies one persisted transaction log for one source.
type Ref struct {
	Source  string
	Channel string
}

// Identifier returns the deterministic storage key for the reference. The
// channel defaults to "default" when empty; the source is required.
func (r Ref) Identifier() (string, error) {
	source := strings.TrimSpace(r.Source)
	if source == "" {
		return "", fmt.Errorf("sync: ref source is required")
	}
	channel := strings.TrimSpace(r.Channel)
	if channel == "" {
		channel = "default"
	}
	return fmt.Sprintf("%s/%s", source, channel), nil
}

// Meta is storage-owned metadata used for trace/audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one transaction log for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (log Log, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, log Log, meta Meta) (Meta, error)
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
