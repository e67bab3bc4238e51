package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// definitionSchema is the JSON schema rotavault.yaml is validated against
// before unmarshalling, so typos surface with a field path instead of a
// zero value downstream.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "environments"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "environments": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["vault_url"],
        "properties": {
          "vault_url": {"type": "string"},
          "namespace": {"type": "string"},
          "apps": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "required": ["paths"],
              "properties": {
                "paths": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["path"],
                    "properties": {
                      "path": {"type": "string"},
                      "format": {"enum": ["dotenv_export", "dotenv_plain", "json"]},
                      "key": {"type": "string"},
                      "access_key_name": {"type": "string"},
                      "secret_key_name": {"type": "string"}
                    },
                    "additionalProperties": false
                  }
                }
              },
              "additionalProperties": false
            }
          }
        },
        "additionalProperties": false
      }
    },
    "formats": {
      "type": "object",
      "propertyNames": {"enum": ["dotenv_export", "dotenv_plain", "json"]},
      "additionalProperties": {
        "type": "object",
        "properties": {
          "default_key": {"type": "string"},
          "access_key_name": {"type": "string"},
          "secret_key_name": {"type": "string"},
          "path_patterns": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// validateSchema checks raw YAML against definitionSchema. gojsonschema
// speaks JSON, so the document goes through a YAML→JSON round trip first.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return nil
}
