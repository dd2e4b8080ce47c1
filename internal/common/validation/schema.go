// Package validation checks the outer structure of imported documents.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins the errors into one line.
func (r *ValidationResult) Summary() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// Schema is a compiled JSON schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompile panics on an invalid schema; schemas are package constants.
func MustCompile(name, source string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Validate checks raw JSON against the schema. Malformed JSON is reported as a
// validation failure, not an error.
func (s *Schema) Validate(raw []byte) *ValidationResult {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "MALFORMED_DOCUMENT",
			}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

const sessionSchemaSource = `{
  "type": "object",
  "required": ["id", "version", "context"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"},
    "expiresAt": {"type": "string"},
    "context": {"type": "object"},
    "metadata": {
      "type": "object",
      "properties": {
        "invalidAttempts": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

const draftSchemaSource = `{
  "type": "object",
  "required": ["name", "version", "context"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string"},
    "version": {"type": "integer", "minimum": 1},
    "context": {"type": "object"},
    "chatHistory": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"enum": ["user", "assistant", "system"]},
          "content": {"type": "string"}
        }
      }
    },
    "populatedSections": {"type": ["array", "null"]},
    "metadata": {"type": ["object", "null"]}
  }
}`

var (
	SessionSchema = MustCompile("session", sessionSchemaSource)
	DraftSchema   = MustCompile("draft", draftSchemaSource)
)
