package tools

import "errors"

// Sentinel errors for tool registration and manifest loading.
var (
	// ErrToolNotFound is returned when a requested tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameRequired is returned when registering a tool without a name.
	ErrToolNameRequired = errors.New("tool name is required")

	// ErrToolDescriptionRequired is returned when registering a tool without a description.
	ErrToolDescriptionRequired = errors.New("tool description is required")

	// ErrInputSchemaRequired is returned when registering a tool without an input schema.
	ErrInputSchemaRequired = errors.New("input schema is required")

	// ErrHandlerRequired is returned when registering a tool without a handler.
	ErrHandlerRequired = errors.New("tool handler is required")

	// ErrInvalidKind is returned when a manifest's kind is not "Tool".
	ErrInvalidKind = errors.New(`manifest kind must be "Tool"`)

	// ErrUnsupportedAPIVersion is returned when a manifest declares an
	// apiVersion this runtime does not read.
	ErrUnsupportedAPIVersion = errors.New("unsupported manifest apiVersion")
)
