package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: "debug", Output: &buf}).
		WithFields(map[string]interface{}{"component": "outbox"})

	l.Error(errors.New("boom"), "Publish failed", "event_id", "abc")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Publish failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "outbox", entry["component"])
	assert.Equal(t, "abc", entry["event_id"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: "warn", Output: &buf})

	l.Info("ignored")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: "loud", Output: &buf})

	l.Debug("ignored")
	l.Info("kept")
	assert.NotContains(t, buf.String(), "ignored")
	assert.Contains(t, buf.String(), "kept")
}
