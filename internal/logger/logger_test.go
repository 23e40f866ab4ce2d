package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kanal.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	l.Info().Str("component", "test").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test", entry["component"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFiltersOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanal.log")

	l, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Msg("hidden")
	l.Error().Msg("visible")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanal.log")

	l, err := New(Config{Level: "loud", File: path})
	require.NoError(t, err)

	l.Debug().Msg("debug line")
	l.Info().Msg("info line")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "debug line")
	assert.Contains(t, string(data), "info line")
}

func TestNew_CreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "kanal.log")

	l, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestClose_WithoutFileIsNoop(t *testing.T) {
	l, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestWith_AddsPersistentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanal.log")

	l, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	child := l.With().Str("lane", "session-1").Logger()
	child.Info().Msg("scoped")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lane":"session-1"`)
}
