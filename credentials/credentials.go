// Package credentials resolves API secrets for upstream connections.
//
// Resolution walks a fixed chain: an explicit value, a credential file, a
// named environment variable, then a list of conventional fallback
// variables. The chain mirrors how deployments hand secrets around:
// explicit values in tests, mounted files in containers, environment
// variables everywhere else.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Conventional fallback environment variables per consumer.
var (
	// GatewayEnvVars is the fallback chain for the upstream realtime gateway.
	GatewayEnvVars = []string{"RELAYKIT_API_KEY", "OPENAI_API_KEY"}

	// OracleEnvVars is the fallback chain for the classification oracle.
	OracleEnvVars = []string{"RELAYKIT_ORACLE_TOKEN"}
)

// Source describes where a secret comes from. Fields are consulted in
// declaration order; the first one set wins.
type Source struct {
	// Value is the secret itself.
	Value string

	// File names a file whose trimmed contents are the secret.
	File string

	// Dir anchors a relative File path.
	Dir string

	// EnvVar names an environment variable holding the secret. Naming a
	// variable that is unset is an error, unlike the fallback chain.
	EnvVar string
}

// Resolve walks the source chain and then the fallback variables in order.
// An empty result with no error means no secret is configured anywhere;
// callers that can operate unauthenticated may proceed.
func Resolve(src Source, fallbackEnv ...string) (string, error) {
	if src.Value != "" {
		return src.Value, nil
	}

	if src.File != "" {
		secret, err := readSecretFile(src.File, src.Dir)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		return secret, nil
	}

	if src.EnvVar != "" {
		secret := os.Getenv(src.EnvVar)
		if secret == "" {
			return "", fmt.Errorf("environment variable %s is not set", src.EnvVar)
		}
		return secret, nil
	}

	for _, name := range fallbackEnv {
		if secret := os.Getenv(name); secret != "" {
			return secret, nil
		}
	}
	return "", nil
}

// MustResolve resolves a secret and panics on error. For initialization
// paths where a misconfigured credential cannot be recovered from.
func MustResolve(src Source, fallbackEnv ...string) string {
	secret, err := Resolve(src, fallbackEnv...)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve credential: %v", err))
	}
	return secret
}

// readSecretFile reads a secret from a file. Surrounding whitespace is
// trimmed so trailing newlines from editors and secret mounts do not end up
// inside the secret.
func readSecretFile(path, dir string) (string, error) {
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("credential file %s is empty", path)
	}
	return secret, nil
}
