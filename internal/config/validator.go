package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains the shape of the on-disk config document. Routing
// groups are the part most often hand-edited, so they get the tightest
// checks.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "data_dir": {"type": "string"},
    "project_id": {"type": "string"},
    "routing": {
      "type": "object",
      "properties": {
        "commentChannel": {"type": "string"},
        "groups": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "sources"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "allowFrom": {"type": "array", "items": {"type": "string"}},
              "mode": {"type": "string"},
              "busyPolicy": {"enum": ["", "queue", "steer"]},
              "sources": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["channel"],
                  "properties": {
                    "channel": {"type": "string", "minLength": 1},
                    "scope": {"enum": ["", "dm", "group", "comments", "all"]},
                    "channelIds": {"type": "array", "items": {"type": "string"}}
                  }
                }
              }
            }
          }
        }
      }
    },
    "memory": {
      "type": "object",
      "properties": {
        "dir": {"type": "string"},
        "promotion": {
          "type": "object",
          "properties": {
            "auto_promote_trust": {
              "type": "array",
              "items": {"enum": ["trusted", "system", "untrusted"]}
            },
            "min_confidence_auto_promote": {"type": "number", "minimum": 0, "maximum": 1}
          }
        },
        "compression": {
          "type": "object",
          "properties": {
            "max_lines": {"type": "integer", "minimum": 0},
            "max_bytes": {"type": "integer", "minimum": 0},
            "min_age_minutes": {"type": "integer", "minimum": 0},
            "keep_last_lines": {"type": "integer", "minimum": 0},
            "snapshot_dir": {"type": "string"}
          }
        }
      }
    },
    "agent": {
      "type": "object",
      "properties": {
        "command": {"type": "array", "items": {"type": "string"}},
        "timeout_seconds": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// ValidateDocument checks a raw config document against the schema before it
// is unmarshalled.
func ValidateDocument(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("config does not match schema: %s", strings.Join(problems, "; "))
}
