package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	SetLevel(LevelInfo)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetFormat("text")
	})

	Debug("hidden", "k", 1)
	assert.Zero(t, buf.Len())

	Error("store save failed", errors.New("disk full"), "path", "/tmp/x", "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "store save failed", line["msg"])
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "disk full", line["error"])
	assert.Equal(t, "/tmp/x", line["path"])
	assert.NotContains(t, line, "dangling")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
