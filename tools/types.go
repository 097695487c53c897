// Package tools provides the function execution layer for realtime sessions.
//
// A Registry binds tool descriptors (name, description, JSON Schema) to
// handler functions and executes reassembled calls against them. Execution
// never throws: unknown tools, schema violations, handler errors, and
// handler panics all come back as structured failure results so the
// conversation can recover. Descriptors can be declared in code or loaded
// from K8s-style YAML manifests.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ToolConfig represents a K8s-style tool configuration manifest.
type ToolConfig struct {
	APIVersion string            `json:"apiVersion" yaml:"apiVersion"`
	Kind       string            `json:"kind" yaml:"kind"`
	Metadata   metav1.ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Spec       ToolDescriptor    `json:"spec" yaml:"spec"`
}

// ToolDescriptor represents a normalized tool definition.
type ToolDescriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	// Version is the semantic version of the tool definition, if tracked.
	Version      string          `json:"version,omitempty" yaml:"version,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema" yaml:"input_schema"`                       // JSON Schema Draft-07
	OutputSchema json.RawMessage `json:"output_schema,omitempty" yaml:"output_schema,omitempty"` // JSON Schema Draft-07, optional
	TimeoutMs    int             `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// Handler executes one tool invocation. Arguments have already passed input
// schema validation. A returned error becomes a structured failure result;
// it never reaches the session as a thrown failure.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolResult represents the result of a tool execution. The Error field is
// data carried back into the conversation, never a control-flow error:
// executions that go wrong still produce a result.
type ToolResult struct {
	Name      string          `json:"name"`
	CallID    string          `json:"call_id,omitempty"` // Stamped by the caller that owns the call
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// Failed reports whether the execution produced a failure result.
func (r *ToolResult) Failed() bool {
	return r.Error != ""
}

// ValidationError represents a tool validation failure.
type ValidationError struct {
	Type   string `json:"type"` // "args_invalid" | "result_invalid"
	Tool   string `json:"tool"`
	Detail string `json:"detail"`
	Path   string `json:"path,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s validation error (%s): %s", e.Tool, e.Type, e.Detail)
}
