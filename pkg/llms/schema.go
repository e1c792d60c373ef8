package llms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	schemavalidator "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaFor derives a JSON schema document from a Go struct type. The schema
// is inlined (no $ref) so it can be embedded in prompts and provider
// requests verbatim.
func SchemaFor(name string, value interface{}) (*StructuredOutputConfig, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	schema := reflector.Reflect(value)
	schema.Version = "" // backends reject $schema fields they don't know

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema for %s: %w", name, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema for %s: %w", name, err)
	}

	return &StructuredOutputConfig{Name: name, Schema: doc}, nil
}

// MustSchemaFor is SchemaFor for package-level schema variables.
func MustSchemaFor(name string, value interface{}) *StructuredOutputConfig {
	cfg, err := SchemaFor(name, value)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ValidateAgainstSchema checks a JSON document against the schema and
// returns a validation error suitable for feeding back to the model.
func ValidateAgainstSchema(structConfig *StructuredOutputConfig, document string) error {
	if structConfig == nil || structConfig.Schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(structConfig.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	compiler := schemavalidator.NewCompiler()
	schemaDoc, err := schemavalidator.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to parse schema: %w", err)
	}

	resource := structConfig.Name
	if resource == "" {
		resource = "output"
	}
	resource += ".schema.json"

	if err := compiler.AddResource(resource, schemaDoc); err != nil {
		return fmt.Errorf("failed to register schema: %w", err)
	}

	compiled, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	instance, err := schemavalidator.UnmarshalJSON(strings.NewReader(document))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
