package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facevec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "faces.db", cfg.DB.Path)
	assert.Equal(t, 128, cfg.DB.Dimension)
	assert.Equal(t, 5*time.Second, cfg.DB.BusyTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `db:
  path: /var/lib/facevec/faces.db
  dimension: 512
  busy_timeout: 10s
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/facevec/faces.db", cfg.DB.Path)
	assert.Equal(t, 512, cfg.DB.Dimension)
	assert.Equal(t, 10*time.Second, cfg.DB.BusyTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	fc := cfg.Facevec()
	assert.Equal(t, cfg.DB.Path, fc.Path)
	assert.Equal(t, 512, fc.Dimension)
	assert.Equal(t, 10*time.Second, fc.BusyTimeout)
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "db:\n  dimension: 64\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.DB.Dimension)
	assert.Equal(t, "faces.db", cfg.DB.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "db:\n  path: from-file.db\n  dimension: 64\n")

	t.Setenv("FACEVEC_DB_PATH", "from-env.db")
	t.Setenv("FACEVEC_DB_BUSY_TIMEOUT", "250ms")
	t.Setenv("FACEVEC_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.DB.Path)
	assert.Equal(t, 64, cfg.DB.Dimension)
	assert.Equal(t, 250*time.Millisecond, cfg.DB.BusyTimeout)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"zero dimension": "db:\n  dimension: 0\n",
		"bad level":      "log:\n  level: loud\n",
		"bad format":     "log:\n  format: xml\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, content))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadBrokenYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "db: [unclosed\n"))
	assert.Error(t, err)
}

func TestLoadDefersValidationToOverrides(t *testing.T) {
	t.Setenv("FACEVEC_DB_DIMENSION", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.DB.Dimension)
	require.Error(t, cfg.Validate())

	cfg.DB.Dimension = 16
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsLargeFile(t *testing.T) {
	path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize)+"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"FACEVEC_DB_PATH":         "db.path",
		"FACEVEC_DB_BUSY_TIMEOUT": "db.busy_timeout",
		"FACEVEC_LOG_FORMAT":      "log.format",
		"FACEVEC_VERBOSE":         "verbose",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestZapLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.ZapLevel()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = LogConfig{Level: "chatty"}.ZapLevel()
	assert.Error(t, err)
}
