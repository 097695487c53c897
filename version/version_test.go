package version

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/RelayKit/logger"
)

// withBuildVars temporarily stamps the build variables for one test body.
func withBuildVars(t *testing.T, v, commit, date string, fn func()) {
	t.Helper()

	origVersion, origCommit, origDate := version, gitCommit, buildDate
	defer func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	}()
	version, gitCommit, buildDate = v, commit, date
	fn()
}

func TestVersionNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, Version())
}

func TestVersionStamped(t *testing.T) {
	withBuildVars(t, "1.0.0", "", "", func() {
		assert.Equal(t, "1.0.0", Version())
	})
}

func TestInfo(t *testing.T) {
	assert.Contains(t, Info(), "RelayKit runtime version")
}

func TestInfoStamped(t *testing.T) {
	withBuildVars(t, "2.0.0", "def4567", "2026-06-15", func() {
		info := Info()
		assert.Contains(t, info, "2.0.0")
		assert.Contains(t, info, "commit: def4567")
		assert.Contains(t, info, "built: 2026-06-15")
	})
}

func TestBuildAttrs(t *testing.T) {
	attrs := BuildAttrs()
	require.GreaterOrEqual(t, len(attrs), 2)
	assert.Equal(t, "version", attrs[0])
}

func TestBuildAttrsStamped(t *testing.T) {
	withBuildVars(t, "1.2.3", "abc1234", "2026-01-01", func() {
		attrs := BuildAttrs()
		require.Equal(t, 0, len(attrs)%2)

		got := make(map[string]any, len(attrs)/2)
		for i := 0; i < len(attrs); i += 2 {
			got[attrs[i].(string)] = attrs[i+1]
		}
		assert.Equal(t, "1.2.3", got["version"])
		assert.Equal(t, "abc1234", got["commit"])
		assert.Equal(t, "2026-01-01", got["built"])
		// A stamped commit means the dirty probe is skipped entirely.
		assert.NotContains(t, got, "dirty")
	})
}

func TestLogStartup(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(nil)

	t.Run("silent at info level", func(t *testing.T) {
		logger.SetLevel(slog.LevelInfo)
		defer logger.SetLevel(slog.LevelInfo)

		buf.Reset()
		LogStartup()
		assert.Empty(t, buf.String())
	})

	t.Run("logs at debug level", func(t *testing.T) {
		logger.SetLevel(slog.LevelDebug)
		defer logger.SetLevel(slog.LevelInfo)

		buf.Reset()
		withBuildVars(t, "9.9.9", "fff0000", "", func() {
			LogStartup()
		})
		out := buf.String()
		assert.Contains(t, out, "RelayKit runtime starting")
		assert.Contains(t, out, "9.9.9")
	})
}
