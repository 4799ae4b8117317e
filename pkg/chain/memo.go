package chain

import (
	"fmt"

	"github.com/covenantlabs/mandate/pkg/canonical"
	"github.com/covenantlabs/mandate/pkg/contracts"
)

// memoScope tags every memo so attestations from this subsystem are
// distinguishable on a shared chain.
const memoScope = "mandate-audit"

// fingerprintLen is how many hex characters of the content hash go on
// chain. 72 bits is ample for collision-free lookup while keeping the
// memo well under transaction size limits.
const fingerprintLen = 18

type memoBody struct {
	Version int    `json:"v"`
	Scope   string `json:"scope"`
	Type    string `json:"type"`
	Hash    string `json:"hash"`
}

// BuildMemo renders the canonical on-chain memo for an event. The memo
// carries only the event type and a hash fingerprint, never payload
// data; the chain attests existence and order, not content.
func BuildMemo(e *contracts.MandateEvent) ([]byte, error) {
	if e.ContentHash == "" {
		return nil, fmt.Errorf("event %s has no content hash", e.ID)
	}
	return canonical.Marshal(memoBody{
		Version: 1,
		Scope:   memoScope,
		Type:    string(e.Type),
		Hash:    canonical.Fingerprint(e.ContentHash, fingerprintLen),
	})
}
