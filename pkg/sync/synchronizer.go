package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/goliatone/go-metamodel"
	"github.com/goliatone/go-metamodel/internal/txcodec"
)

// LogVersion is the envelope version this package writes and accepts.
const LogVersion = 1

// Envelope is the decoded form of a Log payload.
type Envelope struct {
	Version     int              `json:"version"`
	Transaction string           `json:"transaction"`
	Records     []model.TxRecord `json:"records"`
}

// Synchronizer replays persisted transaction logs into registries and
// publishes captured transactions back through the store.
type Synchronizer struct {
	Store   Store
	Decoder *txcodec.Decoder[Envelope]
}

// NewSynchronizer builds a synchronizer over store with the default decoder.
func NewSynchronizer(store Store) Synchronizer {
	return Synchronizer{Store: store, Decoder: DefaultDecoder()}
}

// DefaultDecoder builds the envelope decoder with version defaulting and
// validation hooks attached.
func DefaultDecoder() *txcodec.Decoder[Envelope] {
	return txcodec.NewDecoder[Envelope](
		txcodec.WithPreHook[Envelope](defaultVersion),
		txcodec.WithPostHook[Envelope](validateEnvelope),
	)
}

func defaultVersion(_ txcodec.Context, payload map[string]any) (map[string]any, error) {
	if _, ok := payload["version"]; !ok {
		payload["version"] = LogVersion
	}
	return payload, nil
}

func validateEnvelope(ctx txcodec.Context, envelope *Envelope) error {
	if envelope.Version != LogVersion {
		return fmt.Errorf("unsupported log version %d for source %q", envelope.Version, ctx.Source)
	}
	if envelope.Transaction == "" {
		return fmt.Errorf("log for source %q has no transaction id", ctx.Source)
	}
	return nil
}

// Apply loads the log stored under ref, decodes it, and replays it into the
// target registry. The boolean reports whether a log existed; replay errors
// surface with the loaded meta so callers can inspect provenance.
func (s Synchronizer) Apply(ctx context.Context, target *model.Registry, ref Ref) (Meta, bool, error) {
	if s.Store == nil {
		return Meta{}, false, fmt.Errorf("sync: store is required")
	}
	if target == nil {
		return Meta{}, false, fmt.Errorf("sync: target registry is required")
	}

	log, meta, ok, err := s.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, false, fmt.Errorf("sync: load %q/%q: %w", ref.Source, ref.Channel, err)
	}
	if !ok {
		return Meta{}, false, nil
	}

	envelope, err := s.decode(ref, log)
	if err != nil {
		return meta, true, err
	}
	tx := model.RestoreTransaction(target, envelope.Transaction, envelope.Records)
	if err := tx.Perform(); err != nil {
		return meta, true, fmt.Errorf("sync: replay %q/%q: %w", ref.Source, ref.Channel, err)
	}
	return meta, true, nil
}

// Publish encodes a captured transaction and saves it through the store under
// ref. A non-empty meta.ETag must match the stored ETag, otherwise
// ErrETagMismatch reports the conflict and nothing is written.
func (s Synchronizer) Publish(ctx context.Context, ref Ref, tx *model.Transaction, meta Meta) (Meta, error) {
	if s.Store == nil {
		return Meta{}, fmt.Errorf("sync: store is required")
	}
	if tx == nil {
		return Meta{}, fmt.Errorf("sync: transaction is required")
	}

	_, stored, ok, err := s.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, fmt.Errorf("sync: load %q/%q: %w", ref.Source, ref.Channel, err)
	}
	if ok && meta.ETag != "" && stored.ETag != "" && meta.ETag != stored.ETag {
		return stored, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, stored.ETag)
	}

	log, err := EncodeLog(tx)
	if err != nil {
		return Meta{}, err
	}

	saveMeta := mergeMeta(stored, meta)
	if saveMeta.SnapshotID == "" {
		saveMeta.SnapshotID = tx.ID()
	}
	if saveMeta.UpdatedAt.IsZero() {
		saveMeta.UpdatedAt = time.Now()
	}
	saved, err := s.Store.Save(ctx, ref, log, saveMeta)
	if err != nil {
		return Meta{}, fmt.Errorf("sync: save %q/%q: %w", ref.Source, ref.Channel, err)
	}
	return saved, nil
}

func (s Synchronizer) decode(ref Ref, log Log) (Envelope, error) {
	decoder := s.Decoder
	if decoder == nil {
		decoder = DefaultDecoder()
	}
	return decoder.Decode(txcodec.Context{Source: ref.Source, Channel: ref.Channel}, map[string]any(log))
}

// EncodeLog serialises a transaction into its storable Log form. Values pass
// through JSON, so replaying a published log sees JSON-native types.
func EncodeLog(tx *model.Transaction) (Log, error) {
	envelope := Envelope{
		Version:     LogVersion,
		Transaction: tx.ID(),
		Records:     tx.Records(),
	}
	buffer, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("sync: encode transaction %q: %w", tx.ID(), err)
	}
	var log Log
	if err := json.Unmarshal(buffer, &log); err != nil {
		return nil, fmt.Errorf("sync: encode transaction %q: %w", tx.ID(), err)
	}
	return log, nil
}
