package manifest

import (
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "repo-trust.manifest",
  "type": "object",
  "required": ["version", "repository", "release", "artifacts", "generated_at", "generator"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "repository": {
      "type": "object",
      "required": ["owner", "name", "full_name", "url"],
      "additionalProperties": false,
      "properties": {
        "owner": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "full_name": {"type": "string", "minLength": 3},
        "url": {"type": "string", "minLength": 1}
      }
    },
    "release": {
      "type": "object",
      "required": ["tag", "commit", "published_at", "release_id"],
      "additionalProperties": false,
      "properties": {
        "tag": {"type": "string", "minLength": 1},
        "commit": {"type": "string"},
        "published_at": {"type": "string"},
        "release_id": {"type": "integer"}
      }
    },
    "artifacts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["filename", "digest", "size_bytes", "download_url"],
        "additionalProperties": false,
        "properties": {
          "filename": {"type": "string", "minLength": 1},
          "digest": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
          "size_bytes": {"type": "integer", "minimum": 0},
          "download_url": {"type": "string", "minLength": 1}
        }
      }
    },
    "generated_at": {"type": "string", "minLength": 1},
    "generator": {
      "type": "object",
      "required": ["name", "version"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var (
	compileSchemaOnce sync.Once
	compiledSchema    *jsonschema.Schema
	compileSchemaErr  error
)

func manifestSchema() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiledSchema, compileSchemaErr = compiler.Compile([]byte(manifestSchemaJSON))
	})
	if compileSchemaErr != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", compileSchemaErr)
	}
	return compiledSchema, nil
}

// ValidateBytes checks raw manifest JSON against the embedded schema.
func ValidateBytes(raw []byte) error {
	schema, err := manifestSchema()
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "schema_compile_failed", "", false)
	}
	result := schema.ValidateJSON(raw)
	if result.IsValid() {
		return nil
	}
	return coreerrors.Wrap(
		fmt.Errorf("manifest schema validation failed: %v", result.Errors),
		coreerrors.CategoryVerification,
		"manifest_schema_invalid",
		"the manifest is missing required fields or carries unknown ones",
		false,
	)
}
