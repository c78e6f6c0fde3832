package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, logger.Info(CategoryTool, "tool_invoked", "run ls", map[string]any{"tool": "run"}))
	require.NoError(t, logger.Error(CategoryModel, "generation_failed", "provider down", nil))
	require.NoError(t, logger.Close())

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	require.Len(t, events, 2)
	assert.Equal(t, CategoryTool, events[0].Category)
	assert.Equal(t, "tool_invoked", events[0].EventType)
	assert.False(t, events[0].Timestamp.IsZero())

	errs := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	require.Len(t, errs, 1)
	assert.Equal(t, "generation_failed", errs[0].EventType)
}

func TestLogger_MinLevel(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir)
	require.NoError(t, err)

	// Default min level is info; debug is dropped.
	require.NoError(t, logger.Debug(CategorySession, "noise", "dropped", nil))
	require.NoError(t, logger.Info(CategorySession, "kept", "kept", nil))
	require.NoError(t, logger.Close())

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].EventType)
}

func TestLogger_WithSession(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir)
	require.NoError(t, err)

	sl := logger.WithSession("playground-main")
	require.NoError(t, sl.Info(CategorySession, "loop_started", "", nil))
	require.NoError(t, logger.Close())

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	require.Len(t, events, 1)
	assert.Equal(t, "playground-main", events[0].SessionID)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NoError(t, logger.Info(CategoryHTTP, "request", "", nil))
	assert.NoError(t, logger.Close())
}
