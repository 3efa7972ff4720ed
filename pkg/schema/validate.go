package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// pageSchema is the wire-format contract for a page definition. Metadata
// deliberately allows unknown fields: consumers ignore them for forward
// compatibility, they are never rejected.
const pageSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "version", "sections", "metadata"],
  "properties": {
    "type": {"const": "page"},
    "version": {"type": "integer", "minimum": 1},
    "sections": {
      "type": "array",
      "items": {"$ref": "#/$defs/section"}
    },
    "metadata": {
      "type": "object",
      "required": ["lifecycleStage", "workspaceId", "generatedAtEpochMs", "priority"],
      "properties": {
        "lifecycleStage": {"enum": ["opportunity", "target", "realization", "expansion", "integrity"]},
        "workspaceId": {"type": "string", "minLength": 1},
        "sessionId": {"type": "string"},
        "generatedAtEpochMs": {"type": "integer", "minimum": 0},
        "traceId": {"type": "string"},
        "priority": {"enum": ["low", "normal", "high", "critical"]},
        "telemetryEnabled": {"type": "boolean"}
      }
    }
  },
  "$defs": {
    "section": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"type": "string", "minLength": 1},
        "id": {"type": "string"},
        "componentVersion": {"type": "integer", "minimum": 0},
        "props": {"type": "object"},
        "children": {
          "type": "array",
          "items": {"$ref": "#/$defs/section"}
        }
      }
    }
  }
}`

var (
	compileOnce  sync.Once
	compiledPage *jsonschema.Schema
	compileErr   error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://blueprint.schemas.local/page.schema.json"
		if err := c.AddResource(url, strings.NewReader(pageSchema)); err != nil {
			compileErr = fmt.Errorf("load page schema: %w", err)
			return
		}
		compiledPage, compileErr = c.Compile(url)
	})
	return compiledPage, compileErr
}

// ValidatePage checks the page against the wire-format contract. A degraded
// page built from defaulted data must still pass; only structurally broken
// output fails.
func ValidatePage(p *PageDefinition) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("page shape validation failed: %w", err)
	}
	return nil
}
