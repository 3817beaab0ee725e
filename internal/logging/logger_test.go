package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{LogDir: dir, Level: LevelDebug, File: true})
	require.NoError(t, err)

	lg := l.Component("engine")
	lg.Info().Msg("hello")
	require.NoError(t, l.Close())

	path := l.GetLogPath()
	assert.True(t, strings.HasPrefix(path, dir))
	assert.Contains(t, path, "mirage_")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"engine"`)
	assert.Contains(t, string(data), `"app":"mirage"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestConsoleOnlyHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelWarn, Console: true, Out: &buf})
	require.NoError(t, err)
	assert.Empty(t, l.GetLogPath())

	log := l.Zerolog()
	log.Info().Msg("quiet")
	log.Warn().Msg("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(LevelInfo))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(LevelWarn))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(LevelError))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("verbose"))
}
