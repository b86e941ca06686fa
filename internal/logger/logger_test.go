package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("INFO")

	SetLevel("DEBUG")
	assert.Equal(t, LevelDebug, Level(currentLevel.Load()))

	SetLevel("warn")
	assert.Equal(t, LevelWarn, Level(currentLevel.Load()))

	SetLevel("bogus")
	assert.Equal(t, LevelWarn, Level(currentLevel.Load()), "invalid level is ignored")
}

func TestSetFormat(t *testing.T) {
	defer SetFormat("text")

	SetFormat("json")
	assert.Equal(t, "json", currentFormat.Load())

	SetFormat("nonsense")
	assert.Equal(t, "json", currentFormat.Load(), "invalid format is ignored")
}

func TestJSONOutput(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	SetLevel("DEBUG")
	Info("backup started", KeyArchive, "file:///tmp/a", KeyBand, "b000001")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "backup started", entry["msg"])
	assert.Equal(t, "file:///tmp/a", entry[KeyArchive])
	assert.Equal(t, "b000001", entry[KeyBand])
}

func TestLevelFiltering(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	SetLevel("WARN")
	Debug("ignored")
	Info("also ignored")
	Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, "kept")
}

func TestContextFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetFormat("json")
	SetLevel("DEBUG")

	lc := NewLogContext("backup").WithArchive("s3://bucket/archive").WithBand("b000003")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "entry stored", KeyApath, "/foo/bar")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "backup", entry[KeyOperation])
	assert.Equal(t, "s3://bucket/archive", entry[KeyArchive])
	assert.Equal(t, "b000003", entry[KeyBand])
	assert.Equal(t, "/foo/bar", entry[KeyApath])
}

func TestLogContextCloneIsIndependent(t *testing.T) {
	lc := NewLogContext("restore")
	clone := lc.WithBand("b000001")

	assert.Empty(t, lc.Band)
	assert.Equal(t, "b000001", clone.Band)
}

func TestFromContextNil(t *testing.T) {
	assert.Nil(t, FromContext(nil))
	assert.Nil(t, FromContext(context.Background()))
}

func TestWithBoundFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetFormat("json")
	SetLevel("DEBUG")

	l := With(KeyOperation, "gc")
	l.Info("lock acquired")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "gc", entry[KeyOperation])
}
