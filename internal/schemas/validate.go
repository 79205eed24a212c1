// Package schemas validates completion responses against JSON Schemas before
// any field is trusted. A response that fails its schema is rejected whole;
// nothing partially parseable is ever committed.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed *.schema.json
var schemaFiles embed.FS

// Embedded schema names.
const (
	ExtractionResponse = "extraction_response.schema.json"
	EvidenceResponse   = "evidence_response.schema.json"
	OutreachResponse   = "outreach_response.schema.json"
)

var (
	compiled   = make(map[string]*gojsonschema.Schema)
	compiledMu sync.Mutex
)

// FieldError represents a single validation error at a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates every field-level problem found in a document.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("response failed schema %s:\n", ve.Schema))
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate checks a JSON document against one of the embedded schemas.
// Returns a *ValidationError when the document does not conform and a plain
// error for malformed JSON or schema problems.
func Validate(schemaName string, document []byte) error {
	schema, err := load(schemaName)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate against %s: %w", schemaName, err)
	}

	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Schema: schemaName}
	for _, desc := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return ve
}

func load(schemaName string) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if schema, ok := compiled[schemaName]; ok {
		return schema, nil
	}

	data, err := schemaFiles.ReadFile(schemaName)
	if err != nil {
		return nil, fmt.Errorf("unknown schema %s: %w", schemaName, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", schemaName, err)
	}

	compiled[schemaName] = schema
	return schema, nil
}
