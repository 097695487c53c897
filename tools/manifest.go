package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// APIGroup is the manifest API group accepted by ParseManifest.
const APIGroup = "relaykit.altairalabs.ai"

// supportedAPIVersions lists the manifest versions this build understands.
var supportedAPIVersions = map[string]bool{
	"v1":       true,
	"v1alpha1": true,
}

// ParseManifest parses a YAML tool manifest in K8s resource format:
//
//	apiVersion: relaykit.altairalabs.ai/v1
//	kind: Tool
//	metadata:
//	  name: create_task
//	spec:
//	  description: Create a task
//	  input_schema: {...}
//
// metadata.name is authoritative and overrides any spec.name.
func ParseManifest(data []byte) (*ToolConfig, error) {
	// metav1.ObjectMeta carries json tags only, so decode the YAML into a
	// generic document and re-marshal through JSON to reach the struct.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tool manifest: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert tool manifest to JSON: %w", err)
	}

	var config ToolConfig
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool manifest: %w", err)
	}

	if err := validateManifest(&config); err != nil {
		return nil, err
	}

	config.Spec.Name = config.Metadata.Name
	return &config, nil
}

// RegisterManifest parses a YAML tool manifest and registers its descriptor
// with the given handler.
func (r *Registry) RegisterManifest(data []byte, handler Handler) error {
	config, err := ParseManifest(data)
	if err != nil {
		return err
	}
	return r.Register(&config.Spec, handler)
}

func validateManifest(config *ToolConfig) error {
	if config.Kind != "Tool" {
		return fmt.Errorf("%w: got %q", ErrInvalidKind, config.Kind)
	}
	if err := validateAPIVersion(config.APIVersion); err != nil {
		return err
	}
	if config.Metadata.Name == "" {
		return fmt.Errorf("tool manifest is missing metadata.name: %w", ErrToolNameRequired)
	}
	return nil
}

func validateAPIVersion(apiVersion string) error {
	group, version, found := strings.Cut(apiVersion, "/")
	if !found || group != APIGroup || !supportedAPIVersions[version] {
		return fmt.Errorf("%w: %q", ErrUnsupportedAPIVersion, apiVersion)
	}
	return nil
}

// validateToolVersion validates that a tool version follows Semantic
// Versioning 2.0.0 with the full MAJOR.MINOR.PATCH format. A leading 'v'
// prefix is accepted.
func validateToolVersion(version string) error {
	cleanVersion := strings.TrimPrefix(version, "v")

	// StrictNewVersion rejects short forms like "1.0" that NewVersion
	// would auto-complete
	if _, err := semver.StrictNewVersion(cleanVersion); err != nil {
		return fmt.Errorf("invalid tool version %q: %w", version, err)
	}
	return nil
}
