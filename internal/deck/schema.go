package deck

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const diffSchemaURL = "https://deckpilot.local/schemas/deck-diff.schema.json"

const diffSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "$defs": {
    "componentType": {
      "enum": ["text", "shape", "image", "chart", "table", "icon", "video", "background", "custom"]
    },
    "component": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {"$ref": "#/$defs/componentType"},
        "props": {"type": ["object", "null"]}
      }
    },
    "slide": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "status": {"enum": ["pending", "generating", "completed", ""]},
        "components": {
          "type": ["array", "null"],
          "items": {"$ref": "#/$defs/component"}
        }
      }
    }
  },
  "properties": {
    "slides_to_update": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["slide_id"],
        "properties": {
          "slide_id": {"type": "string", "minLength": 1},
          "components_to_add": {"type": ["array", "null"], "items": {"$ref": "#/$defs/component"}},
          "components_to_update": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["id"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "type": {"$ref": "#/$defs/componentType"},
                "props": {"type": ["object", "null"]}
              }
            }
          },
          "components_to_remove": {"type": ["array", "null"], "items": {"type": "string"}},
          "slide_properties": {"type": ["object", "null"]}
        }
      }
    },
    "slides_to_add": {"type": ["array", "null"], "items": {"$ref": "#/$defs/slide"}},
    "slides_to_remove": {"type": ["array", "null"], "items": {"type": "string"}},
    "deck_properties": {"type": ["object", "null"]}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func diffValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(diffSchemaURL, strings.NewReader(diffSchema)); err != nil {
			schemaErr = fmt.Errorf("diff schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(diffSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("diff schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// DecodeDiff validates raw against the diff schema and decodes it. A null or
// empty payload decodes to an empty diff.
func DecodeDiff(raw json.RawMessage) (Diff, error) {
	var diff Diff
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return diff, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return diff, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
	}
	schema, err := diffValidator()
	if err != nil {
		return diff, err
	}
	if err := schema.Validate(doc); err != nil {
		return diff, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
	}
	if err := json.Unmarshal(raw, &diff); err != nil {
		return diff, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
	}
	return diff, nil
}
