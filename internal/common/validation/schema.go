// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema for request bodies.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Compile parses a JSON schema document.
func Compile(name, schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name, schemaJSON string) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

// ValidateBytes checks a raw JSON document. A malformed document is
// reported as an error, not as an invalid result.
func (s *Schema) ValidateBytes(body []byte) (*ValidationResult, error) {
	return s.validate(gojsonschema.NewBytesLoader(body))
}

func (s *Schema) validate(doc gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := s.schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", s.name, err)
	}
	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldName(e),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out, nil
}

// fieldName turns gojsonschema's "(root).a.0.b" context into "a[0].b".
func fieldName(e gojsonschema.ResultError) string {
	field := strings.TrimPrefix(strings.TrimPrefix(e.Context().String(), "(root)"), ".")
	if e.Type() == "required" {
		if prop, ok := e.Details()["property"].(string); ok {
			if field == "" {
				field = prop
			} else {
				field = field + "." + prop
			}
		}
	}
	if field == "" {
		return ""
	}
	parts := strings.Split(field, ".")
	var b strings.Builder
	for i, p := range parts {
		if isIndex(p) {
			b.WriteString("[" + p + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(p)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		if err.Field == "" {
			messages[i] = err.Message
			continue
		}
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}
