package biokg

import (
	"strconv"
	"sync/atomic"
)

// EvidenceIDs is a threadsafe monotonic generator for the internal evidence
// identifiers used by provenance nodes. Ids live in EvidenceNS and are
// exempt from external namespace validation.
type EvidenceIDs struct {
	id *uint64
}

// NewEvidenceIDs creates a new generator starting at 0.
func NewEvidenceIDs() *EvidenceIDs {
	var id uint64
	return &EvidenceIDs{id: &id}
}

// Next mints a new evidence local id.
func (e *EvidenceIDs) Next() string {
	next := atomic.AddUint64(e.id, 1)
	return strconv.FormatUint(next-1, 10)
}

// Last returns the most recently minted local id.
func (e *EvidenceIDs) Last() string {
	return strconv.FormatUint(atomic.LoadUint64(e.id)-1, 10)
}
