package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AltairaLabs/RelayKit/logger"
)

// defaultTimeoutMs bounds handler execution when a descriptor sets no timeout.
const defaultTimeoutMs = 3000

// registration binds a tool descriptor to its handler.
type registration struct {
	descriptor *ToolDescriptor
	handler    Handler
}

// Registry manages tool descriptors and executes calls against their
// handlers. Registration happens at startup; Execute may then be called
// from concurrent dispatch goroutines.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*registration
	validator *SchemaValidator
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]*registration),
		validator: NewSchemaValidator(),
	}
}

// Register adds a tool descriptor and its handler to the registry.
// The descriptor's schemas are compiled here so malformed schemas surface
// at startup instead of on the first call.
func (r *Registry) Register(descriptor *ToolDescriptor, handler Handler) error {
	if err := r.validateDescriptor(descriptor); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("tool %s: %w", descriptor.Name, ErrHandlerRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[descriptor.Name] = &registration{descriptor: descriptor, handler: handler}
	return nil
}

// Get retrieves a tool descriptor by name. Returns nil when not registered.
func (r *Registry) Get(name string) *ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.tools[name]; ok {
		return reg.descriptor
	}
	return nil
}

// Lookup retrieves a tool descriptor by name, with ErrToolNotFound when
// it is not registered.
func (r *Registry) Lookup(name string) (*ToolDescriptor, error) {
	if descriptor := r.Get(name); descriptor != nil {
		return descriptor, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all registered descriptors sorted by name, so session
// configuration payloads built from them are deterministic.
func (r *Registry) Descriptors() []*ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]*ToolDescriptor, 0, len(r.tools))
	for _, reg := range r.tools {
		descriptors = append(descriptors, reg.descriptor)
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}

// Execute runs the named tool against the given argument document and
// always returns a result: unknown tools, invalid arguments, handler
// errors, and handler panics come back as failure results, never as
// errors or panics.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) *ToolResult {
	start := time.Now()

	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return failureResult(name, start, fmt.Sprintf("unknown tool: %s", name))
	}

	args := json.RawMessage(argsJSON)
	if err := r.validator.ValidateArgs(reg.descriptor, args); err != nil {
		return failureResult(name, start, err.Error())
	}

	timeoutMs := reg.descriptor.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	result, err := r.invoke(ctx, reg, args)
	if err != nil {
		return failureResult(name, start, err.Error())
	}

	if len(reg.descriptor.OutputSchema) > 0 {
		if err := r.validator.ValidateResult(reg.descriptor, result); err != nil {
			return failureResult(name, start, err.Error())
		}
	}

	return &ToolResult{
		Name:      name,
		Result:    result,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

// invoke runs the handler with panic containment. A panicking handler
// produces an error like any other handler failure.
func (r *Registry) invoke(ctx context.Context, reg *registration, args json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "Tool handler panicked",
				"tool", reg.descriptor.Name,
				"panic", rec)
			err = fmt.Errorf("tool %s panicked: %v", reg.descriptor.Name, rec)
		}
	}()
	return reg.handler(ctx, args)
}

// validateDescriptor validates a tool descriptor and applies defaults.
func (r *Registry) validateDescriptor(descriptor *ToolDescriptor) error {
	if descriptor.Name == "" {
		return ErrToolNameRequired
	}
	if descriptor.Description == "" {
		return fmt.Errorf("tool %s: %w", descriptor.Name, ErrToolDescriptionRequired)
	}
	if len(descriptor.InputSchema) == 0 {
		return fmt.Errorf("tool %s: %w", descriptor.Name, ErrInputSchemaRequired)
	}
	if descriptor.Version != "" {
		if err := validateToolVersion(descriptor.Version); err != nil {
			return fmt.Errorf("tool %s: %w", descriptor.Name, err)
		}
	}
	if descriptor.TimeoutMs <= 0 {
		descriptor.TimeoutMs = defaultTimeoutMs
	}

	// Compile schemas so bad ones fail registration, not the first call
	if _, err := r.validator.getSchema(string(descriptor.InputSchema)); err != nil {
		return fmt.Errorf("tool %s: invalid input schema: %w", descriptor.Name, err)
	}
	if len(descriptor.OutputSchema) > 0 {
		if _, err := r.validator.getSchema(string(descriptor.OutputSchema)); err != nil {
			return fmt.Errorf("tool %s: invalid output schema: %w", descriptor.Name, err)
		}
	}

	return nil
}

// failureResult builds a failure ToolResult with the elapsed latency.
func failureResult(name string, start time.Time, message string) *ToolResult {
	return &ToolResult{
		Name:      name,
		Error:     message,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}
