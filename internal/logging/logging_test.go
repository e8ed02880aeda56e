package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)

	logger.Debug("issue updated", "id", "01ABC", "version", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "issue updated", entry["msg"])
	assert.Equal(t, "01ABC", entry["id"])
	assert.EqualValues(t, 2, entry["version"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Format: "logfmt"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "row", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "row=3")
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{})
	require.NoError(t, err)

	logger.Debug("quiet")
	logger.Info("loud")
	assert.False(t, strings.Contains(buf.String(), "quiet"))
	assert.Contains(t, buf.String(), "loud")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(nil, Options{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(nil, Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")
}
