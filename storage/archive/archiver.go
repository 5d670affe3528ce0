package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"synapse/core/events"
	"synapse/native/dispute"
)

// EvidenceSource yields dispute snapshots by id. The dispute resolver
// satisfies this.
type EvidenceSource interface {
	Get(id string) (*dispute.Dispute, bool)
}

// Archiver copies every appended evidence entry into the store so payloads
// outlive the resolver's in-memory retention. Keys are
// evidence/<disputeID>/<evidenceID>.
type Archiver struct {
	store  Store
	source EvidenceSource
	logger *slog.Logger
	token  uint64
}

// NewArchiver constructs an archiver over the given backend.
func NewArchiver(store Store, source EvidenceSource, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, source: source, logger: logger}
}

// record is the archived form of one evidence entry.
type record struct {
	DisputeID  string `json:"disputeId"`
	EvidenceID string `json:"evidenceId"`
	Submitter  string `json:"submitter"`
	Kind       string `json:"kind"`
	Digest     string `json:"digest"`
	Timestamp  int64  `json:"timestamp"`
	Payload    any    `json:"payload,omitempty"`
}

// Attach subscribes the archiver to the bus. Detach cancels it.
func (a *Archiver) Attach(bus *events.Bus) {
	if a == nil || bus == nil {
		return
	}
	a.token = bus.Subscribe(events.TypeDisputeEvidence, func(evt events.Event) {
		entry, ok := evt.(events.DisputeEvidence)
		if !ok {
			return
		}
		if err := a.archive(entry); err != nil {
			a.logger.Error("evidence archive failed",
				"disputeId", entry.DisputeID,
				"evidenceId", entry.EvidenceID,
				"error", err,
			)
		}
	})
}

// Detach cancels the bus subscription.
func (a *Archiver) Detach(bus *events.Bus) {
	if a == nil || bus == nil || a.token == 0 {
		return
	}
	bus.Unsubscribe(a.token)
	a.token = 0
}

func (a *Archiver) archive(entry events.DisputeEvidence) error {
	d, ok := a.source.Get(entry.DisputeID)
	if !ok {
		return fmt.Errorf("dispute %s not found", entry.DisputeID)
	}
	for _, ev := range d.Evidence {
		if ev.ID != entry.EvidenceID {
			continue
		}
		raw, err := json.Marshal(record{
			DisputeID:  d.ID,
			EvidenceID: ev.ID,
			Submitter:  string(ev.Submitter),
			Kind:       ev.Kind,
			Digest:     ev.Digest,
			Timestamp:  ev.Timestamp,
			Payload:    ev.Payload,
		})
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		return a.store.Put(Key(d.ID, ev.ID), raw)
	}
	return fmt.Errorf("evidence %s not found on dispute %s", entry.EvidenceID, entry.DisputeID)
}

// Key builds the archive key for one evidence entry.
func Key(disputeID, evidenceID string) []byte {
	return []byte("evidence/" + disputeID + "/" + evidenceID)
}

// Load reads one archived evidence entry back.
func Load(store Store, disputeID, evidenceID string) (map[string]any, error) {
	raw, err := store.Get(Key(disputeID, evidenceID))
	if err != nil {
		return nil, err
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode archived evidence: %w", err)
	}
	return decoded, nil
}

// ListDispute returns the archive keys for every evidence entry of a dispute.
func ListDispute(store Store, disputeID string) ([]string, error) {
	return store.Keys([]byte("evidence/" + disputeID + "/"))
}
