package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator handles JSON Schema validation for tool inputs and outputs.
// Compiled schemas are cached; the cache is safe for use from concurrent
// dispatch goroutines.
type SchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// ValidateArgs validates tool arguments against the input schema.
func (sv *SchemaValidator) ValidateArgs(descriptor *ToolDescriptor, args json.RawMessage) error {
	schema, err := sv.getSchema(string(descriptor.InputSchema))
	if err != nil {
		return fmt.Errorf("invalid input schema for tool %s: %w", descriptor.Name, err)
	}

	argsLoader := gojsonschema.NewBytesLoader(args)
	result, err := schema.Validate(argsLoader)
	if err != nil {
		return fmt.Errorf("validation error for tool %s: %w", descriptor.Name, err)
	}

	if !result.Valid() {
		errors := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errors[i] = desc.String()
		}
		return &ValidationError{
			Type:   "args_invalid",
			Tool:   descriptor.Name,
			Detail: fmt.Sprintf("argument validation failed: %v", errors),
		}
	}

	return nil
}

// ValidateResult validates a tool result against the output schema.
func (sv *SchemaValidator) ValidateResult(descriptor *ToolDescriptor, result json.RawMessage) error {
	schema, err := sv.getSchema(string(descriptor.OutputSchema))
	if err != nil {
		return fmt.Errorf("invalid output schema for tool %s: %w", descriptor.Name, err)
	}

	resultLoader := gojsonschema.NewBytesLoader(result)
	validationResult, err := schema.Validate(resultLoader)
	if err != nil {
		return fmt.Errorf("validation error for tool %s: %w", descriptor.Name, err)
	}

	if !validationResult.Valid() {
		errors := make([]string, len(validationResult.Errors()))
		for i, desc := range validationResult.Errors() {
			errors[i] = desc.String()
		}
		return &ValidationError{
			Type:   "result_invalid",
			Tool:   descriptor.Name,
			Detail: fmt.Sprintf("result validation failed: %v", errors),
		}
	}

	return nil
}

// getSchema retrieves or compiles a JSON schema.
func (sv *SchemaValidator) getSchema(schemaJSON string) (*gojsonschema.Schema, error) {
	sv.mu.RLock()
	schema, exists := sv.cache[schemaJSON]
	sv.mu.RUnlock()
	if exists {
		return schema, nil
	}

	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return nil, err
	}

	sv.mu.Lock()
	sv.cache[schemaJSON] = schema
	sv.mu.Unlock()
	return schema, nil
}
