package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// Property: the content hash is a pure function of the envelope — identical
// events hash identically, and changing any envelope field changes the hash.
func TestEventHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	mkEvent := func(owner, mandateID string, seq uint64) *contracts.MandateEvent {
		payload, _ := json.Marshal(contracts.MandateDeactivatedPayload{MandateID: mandateID})
		return &contracts.MandateEvent{
			OwnerID:   owner,
			Sequence:  seq,
			Type:      contracts.EventMandateDeactivated,
			Payload:   payload,
			Timestamp: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
			PrevHash:  GenesisHash,
		}
	}

	properties.Property("identical envelopes hash identically", prop.ForAll(
		func(owner, mandateID string, seq uint64) bool {
			if owner == "" || mandateID == "" {
				return true
			}
			h1, err1 := ComputeEventHash(mkEvent(owner, mandateID, seq))
			h2, err2 := ComputeEventHash(mkEvent(owner, mandateID, seq))
			return err1 == nil && err2 == nil && h1 == h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.UInt64(),
	))

	properties.Property("sequence change changes the hash", prop.ForAll(
		func(owner, mandateID string, seq uint64) bool {
			if owner == "" || mandateID == "" || seq == ^uint64(0) {
				return true
			}
			h1, _ := ComputeEventHash(mkEvent(owner, mandateID, seq))
			h2, _ := ComputeEventHash(mkEvent(owner, mandateID, seq+1))
			return h1 != h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.UInt64(),
	))

	properties.Property("payload change changes the hash", prop.ForAll(
		func(owner, a, b string) bool {
			if owner == "" || a == "" || b == "" || a == b {
				return true
			}
			h1, _ := ComputeEventHash(mkEvent(owner, a, 1))
			h2, _ := ComputeEventHash(mkEvent(owner, b, 1))
			return h1 != h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
