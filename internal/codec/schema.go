package codec

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// taskStateSchema is a belt-and-braces check on top of Decode's own
// structural validation: it confirms the decoded variant tag and owner
// shape still match what the rest of the coordinator expects, the way
// bundoc validates documents against a JSON Schema before accepting
// them. It is applied only through ValidateSchema, which the
// coordinator's decode path does not call.
const taskStateSchemaJSON = `{
  "type": "object",
  "required": ["variant", "owner"],
  "properties": {
    "variant": {"type": "string", "enum": ["Unassigned", "Owned", "Resigned", "Done", "Err"]},
    "owner": {"type": "string"}
  }
}`

var taskStateSchema = gojsonschema.NewStringLoader(taskStateSchemaJSON)

type taskStateDoc struct {
	Variant string `json:"variant"`
	Owner   string `json:"owner"`
}

// ValidateSchema re-validates a decoded TaskState against the JSON
// Schema above. It is a diagnostic check, not part of the decode path:
// Decode's own tag/length checks are what the coordinator relies on
// for correctness.
func ValidateSchema(s TaskState) error {
	doc := taskStateDoc{Variant: s.Variant.String(), Owner: s.Owner}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("codec: marshal for schema check: %w", err)
	}

	result, err := gojsonschema.Validate(taskStateSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("codec: schema validation error: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %v", ErrMalformed, result.Errors())
	}
	return nil
}
