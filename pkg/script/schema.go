package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// JSONSchema returns the JSON schema for a script whose root is a mapping
// (documentRoot) or a bare list of steps. It checks shapes and value types;
// the one-step-kind-per-entry and one-selector-variant rules are enforced by
// the parser, which can report line numbers.
func JSONSchema(documentRoot bool) string {
	root := "steps"
	if documentRoot {
		root = "document"
	}
	return fmt.Sprintf(`{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"allOf": [{"$ref": "#/definitions/%s"}],
		"definitions": {
			"document": {
				"type": "object",
				"required": ["steps"],
				"additionalProperties": false,
				"properties": {
					"name": {"type": "string"},
					"platform": {"type": "string", "enum": ["android", "ios"]},
					"steps": {"$ref": "#/definitions/steps"}
				}
			},
			"steps": {
				"type": "array",
				"items": {"$ref": "#/definitions/step"}
			},
			"step": {
				"type": "object",
				"minProperties": 1,
				"additionalProperties": false,
				"properties": {
					"selector": {"$ref": "#/definitions/selector"},
					"actions": {
						"type": "array",
						"minItems": 1,
						"items": {"$ref": "#/definitions/action"}
					},
					"take_screenshot": {"type": "string", "minLength": 1},
					"log": {"type": ["string", "number", "boolean"]},
					"pause": {"type": "integer", "minimum": 0},
					"step_file": {"type": "string", "minLength": 1}
				},
				"dependencies": {
					"selector": ["actions"],
					"actions": ["selector"]
				}
			},
			"selector": {
				"type": "object",
				"minProperties": 1,
				"additionalProperties": false,
				"properties": {
					"text": {"type": "string"},
					"xpath": {"type": "string"},
					"class_name": {"type": "string"},
					"instance": {"type": "integer", "minimum": 0},
					"id": {"type": "string"},
					"index": {"type": "integer", "minimum": 0},
					"description": {"type": "string"}
				}
			},
			"action": {
				"if": {"type": "string"},
				"then": {"enum": ["assert_visible", "tap_on", "scroll_until_visible"]},
				"else": {
					"type": "object",
					"minProperties": 1,
					"maxProperties": 1,
					"additionalProperties": false,
					"properties": {
						"insert_data": {
							"type": "object",
							"required": ["data"],
							"additionalProperties": false,
							"properties": {"data": {"type": ["string", "number", "boolean"]}}
						},
						"pause": {"type": "integer", "minimum": 0}
					}
				}
			}
		}
	}`, root)
}

// ValidateShape checks raw YAML script content against JSONSchema.
func ValidateShape(content []byte) error {
	var data interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	_, isDocument := data.(map[string]interface{})
	schemaLoader := gojsonschema.NewStringLoader(JSONSchema(isDocument))
	documentLoader := gojsonschema.NewBytesLoader(jsonData)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
