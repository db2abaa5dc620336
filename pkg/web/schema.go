package web

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is checked against the raw registration payload before it
// is decoded, so structural mistakes (wrong types, missing arrays) surface as
// one validation response instead of a decode error. Duration fields are
// nanoseconds, matching the wire encoding of the decoded form.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "name", "stages", "initial_stage", "final_stages"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"version": {"type": "string"},
		"description": {"type": "string"},
		"initial_stage": {"type": "string", "minLength": 1},
		"final_stages": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"stages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "name", "capability"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"capability": {"type": "string", "minLength": 1},
					"timeout": {"type": "integer", "minimum": 0},
					"compensation_handler": {"type": "string"},
					"required_tags": {"type": "array", "items": {"type": "string"}},
					"retry": {
						"type": "object",
						"properties": {
							"max_attempts": {"type": "integer", "minimum": 0},
							"initial_delay": {"type": "integer", "minimum": 0},
							"max_delay": {"type": "integer", "minimum": 0},
							"multiplier": {"type": "number", "minimum": 1},
							"jitter": {"type": "boolean"}
						}
					}
				}
			}
		},
		"transitions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from_stage", "to_stage"],
				"properties": {
					"from_stage": {"type": "string", "minLength": 1},
					"to_stage": {"type": "string", "minLength": 1},
					"guard": {"type": "string"}
				}
			}
		}
	}
}`

var definitionSchemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ValidateDefinitionPayload checks a raw definition document against the
// registration schema and returns the flattened violation list.
func ValidateDefinitionPayload(payload []byte) error {
	result, err := gojsonschema.Validate(definitionSchemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to validate definition payload: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		details = append(details, violation.String())
	}

	return fmt.Errorf("definition payload is invalid: %s", strings.Join(details, "; "))
}
