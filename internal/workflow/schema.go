package workflow

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ronappleton/caseflow/internal/faults"
)

// Transition documents are authored configuration; they are validated against
// this schema before anything reaches the store.
const transitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "from", "to", "kind"],
    "properties": {
      "id": {"type": "string"},
      "name": {"type": "string", "minLength": 1},
      "from": {"type": "string", "minLength": 1},
      "to": {"type": "string", "minLength": 1},
      "to_kind": {"enum": ["", "initial", "in_progress", "waiting", "completed", "failed", "cancelled"]},
      "kind": {"enum": ["manual", "automatic", "conditional", "scheduled"]},
      "priority": {"type": "integer"},
      "enabled": {"type": "boolean"},
      "conditions": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["field", "operator"],
          "properties": {
            "field": {"type": "string", "minLength": 1},
            "operator": {"enum": ["==", "!=", ">", "<", ">=", "<=", "contains"]},
            "value": {}
          }
        }
      },
      "actions": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["kind"],
          "properties": {
            "kind": {"enum": ["notify", "update_case", "webhook", "start_sequence", "cancel_sequence"]},
            "params": {"type": "object"}
          }
        }
      }
    }
  }
}`

var compiledTransitionSchema = jsonschema.MustCompileString("transitions.json", transitionSchema)

func ParseTransitionDoc(doc []byte) ([]Transition, error) {
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return nil, faults.Validation("transition document is not valid json: %v", err)
	}
	if err := compiledTransitionSchema.Validate(generic); err != nil {
		return nil, faults.Validation("transition document rejected by schema: %v", err)
	}
	var transitions []Transition
	if err := json.Unmarshal(doc, &transitions); err != nil {
		return nil, faults.Validation("transition document does not decode: %v", err)
	}
	return transitions, nil
}
