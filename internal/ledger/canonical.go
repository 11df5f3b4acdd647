package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/onnwee/sitesentinel/internal/pipeline"
)

// sealPayload is the hashed record shape. Integer keys and core deterministic
// encoding give a stable byte sequence for the same run state, independent of
// the storage engine underneath.
type sealPayload struct {
	RunID    string                  `cbor:"1,keyasint"`
	OrgID    string                  `cbor:"2,keyasint"`
	SiteID   string                  `cbor:"3,keyasint"`
	Findings map[pipeline.Stage]any  `cbor:"4,keyasint"`
	History  []pipeline.HistoryEntry `cbor:"5,keyasint"`
	SealedAt time.Time               `cbor:"6,keyasint"`
}

// encMode is the deterministic CBOR encoder (RFC 8949 core deterministic
// encoding: sorted map keys, shortest-form integers).
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeUnixMicro
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid CBOR encoding options: %v", err))
	}
	encMode = em
}

// Canonicalize serializes the run context and seal time into the canonical
// byte sequence the digest covers.
func Canonicalize(rc *pipeline.RunContext, sealedAt time.Time) ([]byte, error) {
	payload, err := encMode.Marshal(sealPayload{
		RunID:    rc.RunID,
		OrgID:    rc.OrgID,
		SiteID:   rc.SiteID,
		Findings: rc.Findings,
		History:  rc.History,
		SealedAt: sealedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize run %s: %w", rc.RunID, err)
	}
	return payload, nil
}

// DigestOf returns the hex SHA-256 digest of a canonical payload.
func DigestOf(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// DigestFindings returns the hex SHA-256 digest of the canonical encoding of
// the run's accumulated findings. The proof sealer stage records this as the
// content fingerprint of what the run decided; the full sealed entry digest
// additionally covers history and seal time.
func DigestFindings(rc *pipeline.RunContext) (string, error) {
	payload, err := encMode.Marshal(rc.Findings)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize findings for run %s: %w", rc.RunID, err)
	}
	return DigestOf(payload), nil
}
