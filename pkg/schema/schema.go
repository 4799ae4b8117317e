// Package schema holds the versioned JSON Schemas for ledger event payloads.
// The ledger validates every payload against the schema for its event type
// before hashing; a payload that does not match its declared shape never
// enters the chain.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// Version tags the payload encoding. It is folded into the event hash
// envelope so a schema revision can never silently re-interpret old events.
const Version = "v1"

var payloadSchemas = map[contracts.EventType]string{
	contracts.EventMandateCreated: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["mandate_id", "rules", "rules_hash"],
		"properties": {
			"mandate_id": {"type": "string", "minLength": 1},
			"rules": {
				"type": "object",
				"required": ["allowed_symbols", "direction", "min_delta", "max_delta", "max_daily_loss_percent", "no_overnight_positions", "strict_delta"],
				"properties": {
					"allowed_symbols": {"type": "array", "items": {"type": "string"}, "minItems": 1},
					"direction": {"enum": ["SELL_TO_OPEN", "BUY_TO_OPEN", "SELL_TO_CLOSE", "BUY_TO_CLOSE"]},
					"min_delta": {"type": "number", "minimum": 0},
					"max_delta": {"type": "number", "minimum": 0},
					"max_daily_loss_percent": {"type": "number", "exclusiveMinimum": 0},
					"no_overnight_positions": {"type": "boolean"},
					"exit_deadline": {"type": "string", "pattern": "^[0-9]{1,2}:[0-9]{2}$"},
					"trading_window": {
						"type": "object",
						"required": ["start", "end"],
						"properties": {
							"start": {"type": "string"},
							"end": {"type": "string"}
						}
					},
					"strict_delta": {"type": "boolean"}
				}
			},
			"rules_hash": {"type": "string", "minLength": 1},
			"replaces_id": {"type": "string"}
		}
	}`,
	contracts.EventMandateDeactivated: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["mandate_id"],
		"properties": {
			"mandate_id": {"type": "string", "minLength": 1},
			"reason": {"type": "string"},
			"superseded_by": {"type": "string"}
		}
	}`,
	contracts.EventViolationBlocked: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["violation_id", "violation_type", "action", "attempted_value", "limit_value"],
		"properties": {
			"violation_id": {"type": "string", "minLength": 1},
			"violation_type": {"enum": ["disallowed-symbol", "delta-out-of-band", "wrong-directionality", "overnight-hold", "daily-loss-exceeded"]},
			"action": {"enum": ["blocked", "warning"]},
			"attempted_value": {"type": "string"},
			"limit_value": {"type": "string"},
			"trade_context": {"type": "string"}
		}
	}`,
	contracts.EventCommitmentRecorded: `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["committed_event_id", "signature", "slot", "cluster"],
		"properties": {
			"committed_event_id": {"type": "string", "minLength": 1},
			"signature": {"type": "string", "minLength": 1},
			"slot": {"type": "integer", "minimum": 0},
			"cluster": {"type": "string", "minLength": 1}
		}
	}`,
}

var compiled map[contracts.EventType]*jsonschema.Schema

func init() {
	compiled = make(map[contracts.EventType]*jsonschema.Schema, len(payloadSchemas))
	for et, src := range payloadSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://covenantlabs.io/schemas/mandate/%s/%s.schema.json",
			Version, strings.ToLower(string(et)))
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("schema: load %s: %v", et, err))
		}
		s, err := c.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("schema: compile %s: %v", et, err))
		}
		compiled[et] = s
	}
}

// ValidatePayload checks raw against the schema for event type t.
func ValidatePayload(t contracts.EventType, raw json.RawMessage) error {
	s, ok := compiled[t]
	if !ok {
		return fmt.Errorf("schema: no schema for event type %q", t)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("schema: payload is not valid JSON: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema: %s payload rejected: %w", t, err)
	}
	return nil
}
