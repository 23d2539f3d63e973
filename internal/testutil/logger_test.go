package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingLogger(t *testing.T) {
	logger, log := NewRecordingLogger(t)

	logger.Debug("starting", slog.String("phase", "stage"))
	logger.With(slog.String("package", "core")).WithGroup("bump").
		Warn("requirement left stale", slog.String("kind", "dev"), slog.Int("count", 2))

	require.Len(t, log.Entries(), 2)
	assert.Len(t, log.At(slog.LevelDebug), 1)

	e, ok := log.Find("requirement left stale")
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, e.Level)
	assert.Equal(t, map[string]string{"package": "core", "kind": "dev", "count": "2"}, e.Attrs)

	_, ok = log.Find("never logged")
	assert.False(t, ok)
}
