package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the structural half of Validate: it catches the "shape"
// mistakes (wrong JSON type, missing keys under a nested object) that are
// tedious to hand-check field by field. The semantic checks (ranges,
// cross-field rules) stay as plain Go in Validate.
const configSchema = `{
  "type": "object",
  "required": ["accountId", "apiKey", "userApiKey", "region", "mode"],
  "properties": {
    "accountId": {"type": "integer"},
    "apiKey": {"type": "string", "minLength": 1},
    "userApiKey": {"type": "string", "minLength": 1},
    "region": {"type": "string", "enum": ["US", "EU"]},
    "mode": {"type": "string", "enum": ["simulation", "infrastructure", "hybrid"]},
    "batchSize": {"type": "integer", "minimum": 1},
    "maxBuffer": {"type": "integer", "minimum": 1},
    "workerPoolSize": {"type": "integer", "minimum": 1},
    "simulation": {
      "type": "object",
      "properties": {
        "anomalyRate": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

func validateSchema(cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config for schema check: %w", err)
	}
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("run schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}
