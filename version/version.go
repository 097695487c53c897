// Package version exposes build metadata for the RelayKit runtime.
// The variables can be stamped at build time with ldflags:
//
//	go build -ldflags "-X github.com/AltairaLabs/RelayKit/version.version=1.0.0"
package version

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/AltairaLabs/RelayKit/logger"
)

const (
	// devVersion is reported when no version was stamped at build time.
	devVersion = "dev"
	// shortCommitLen truncates commit hashes for display.
	shortCommitLen = 7
	// vcsRevisionKey is the build info key carrying the git commit.
	vcsRevisionKey = "vcs.revision"
	// vcsModifiedKey is the build info key marking uncommitted changes.
	vcsModifiedKey = "vcs.modified"
)

// Build-time variables, overridable with -ldflags.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// Version returns the runtime version string. When nothing was stamped it
// falls back to the module version recorded in the build info.
func Version() string {
	if version != devVersion {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devVersion
}

// commitFromBuildInfo extracts the short git commit hash from build info.
func commitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == vcsRevisionKey && setting.Value != "" {
			return setting.Value[:min(shortCommitLen, len(setting.Value))]
		}
	}
	return ""
}

// dirtyFromBuildInfo reports whether the build had uncommitted changes.
func dirtyFromBuildInfo() bool {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return false
	}
	for _, setting := range info.Settings {
		if setting.Key == vcsModifiedKey && setting.Value == "true" {
			return true
		}
	}
	return false
}

// Info returns a human-readable version block for --version style output.
func Info() string {
	var b strings.Builder

	fmt.Fprintf(&b, "RelayKit runtime version %s", Version())

	commit := gitCommit
	if commit == "" {
		commit = commitFromBuildInfo()
	}
	if commit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", commit)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

// BuildAttrs returns version details as slog key-value pairs for inclusion
// in log messages.
func BuildAttrs() []any {
	attrs := []any{
		"version", Version(),
	}

	commit := gitCommit
	if commit == "" {
		commit = commitFromBuildInfo()
	}
	if commit != "" {
		attrs = append(attrs, "commit", commit)
	}
	if gitCommit == "" && dirtyFromBuildInfo() {
		attrs = append(attrs, "dirty", true)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}

// LogStartup logs the build metadata at debug level.
func LogStartup() {
	// Reading build info is not free, so skip it when debug is off.
	if !logger.DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	logger.Debug("RelayKit runtime starting", BuildAttrs()...)
}
