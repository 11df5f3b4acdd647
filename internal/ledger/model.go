// Package ledger provides the append-only, content-addressed audit ledger.
// Every pipeline run, completed or failed, is sealed into an immutable entry
// whose digest is recomputable from its payload, so any downstream consumer
// can prove the record was not altered after the fact.
package ledger

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no entry exists for the tenant and run.
	ErrNotFound = errors.New("ledger entry not found")

	// ErrDuplicateRun is returned when a run is sealed more than once.
	ErrDuplicateRun = errors.New("run already sealed")
)

// Entry is an immutable, content-addressed record of one sealed run.
// No field is ever mutated or deleted after Append.
type Entry struct {
	EntryID string
	OrgID   string
	RunID   string
	SiteID  string

	// Digest is the hex SHA-256 of Payload.
	Digest string

	// Payload is the canonical CBOR serialization of the sealed run.
	Payload []byte

	SealedAt time.Time
}

// clone returns a deep copy so stored entries cannot be mutated externally.
func (e *Entry) clone() *Entry {
	out := *e
	out.Payload = make([]byte, len(e.Payload))
	copy(out.Payload, e.Payload)
	return &out
}
