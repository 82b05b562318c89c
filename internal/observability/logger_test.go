package observability

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"panic":   zerolog.PanicLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stream.log")

	w := fileWriter(path)
	lj, ok := w.(*lumberjack.Logger)
	if assert.True(t, ok, "expected a rotating writer, got %T", w) {
		assert.Equal(t, path, lj.Filename)
		assert.DirExists(t, filepath.Dir(path))
	}
}

func TestNewCorrelationID(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
