package types

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Prefix tags for the identifier namespaces used across the fabric.
const (
	IDPrefixIntent     = "int"
	IDPrefixBid        = "bid"
	IDPrefixDispute    = "disp"
	IDPrefixEvidence   = "evd"
	IDPrefixSettlement = "tx"
)

// IDSource produces opaque, URL-safe identifiers carrying a namespace prefix.
// Identifiers issued by the same source sort lexicographically in issue order.
type IDSource interface {
	NewID(prefix string) string
}

// UUIDSource issues UUIDv7 identifiers (millisecond timestamp plus a
// monotonic sub-millisecond sequence), which keeps IDs sortable without
// coordination. It is the production source.
type UUIDSource struct{}

// NewID implements IDSource.
func (UUIDSource) NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// Entropy exhaustion is the only failure mode; fall back to v4
		// rather than surfacing an error on every allocation site.
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}

// SequenceSource issues deterministic identifiers (prefix_000001, ...) so
// tests can assert on exact IDs.
type SequenceSource struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewSequenceSource constructs an empty deterministic source.
func NewSequenceSource() *SequenceSource {
	return &SequenceSource{counters: make(map[string]uint64)}
}

// NewID implements IDSource.
func (s *SequenceSource) NewID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = make(map[string]uint64)
	}
	s.counters[prefix]++
	return fmt.Sprintf("%s_%06d", prefix, s.counters[prefix])
}
