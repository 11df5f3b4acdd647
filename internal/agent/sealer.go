package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/onnwee/sitesentinel/internal/ledger"
	"github.com/onnwee/sitesentinel/internal/pipeline"
)

// Proof is the sealer's contribution to the findings: a stable proof ID and
// the content fingerprint of everything the run decided.
type Proof struct {
	ProofID       string `json:"proof_id" cbor:"1,keyasint"`
	ContentDigest string `json:"content_digest" cbor:"2,keyasint"`
}

// proofNamespace is the UUIDv5 namespace for proof IDs.
var proofNamespace = uuid.MustParse("6b1de1a2-7f80-4f5e-9be3-2c41f7a6b9d4")

// Sealer is the last stage of a successful run. It fingerprints the
// accumulated findings; the orchestrator performs the actual ledger write at
// the terminal state, whether or not this stage was reached.
type Sealer struct{}

// NewSealer creates the proof sealer agent.
func NewSealer() *Sealer {
	return &Sealer{}
}

// Stage returns the stage this agent serves.
func (s *Sealer) Stage() pipeline.Stage {
	return pipeline.StageProofSealer
}

// Execute computes the content digest of the run's findings. The proof ID is
// a UUIDv5 over run ID and digest, so re-execution on the same snapshot
// yields the same result. The only failure mode is an uncanonicalizable
// payload, which would also make the run unsealable.
func (s *Sealer) Execute(_ context.Context, rc pipeline.RunContext) pipeline.StageResult {
	digest, err := ledger.DigestFindings(&rc)
	if err != nil {
		return pipeline.Failed("findings are not sealable: " + err.Error())
	}
	return pipeline.Completed(Proof{
		ProofID:       uuid.NewSHA1(proofNamespace, []byte(rc.RunID+":"+digest)).String(),
		ContentDigest: digest,
	})
}
