package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, enabled map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetBase(zap.New(core), enabled)
	t.Cleanup(func() { SetBase(zap.NewNop(), nil) })
	return logs
}

func TestCategoryLoggerNamesEntries(t *testing.T) {
	logs := observe(t, nil)

	PollWarn("message loop failed: %s", "timeout")
	Get(CategoryStore).Info("merged %d messages", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "poll", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "message loop failed: timeout", entries[0].Message)
	assert.Equal(t, "store", entries[1].LoggerName)
	assert.Equal(t, "merged 3 messages", entries[1].Message)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, map[string]bool{"presence": false, "poll": true})

	PresenceDebug("should not appear")
	PollDebug("visible")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0].Message)
	assert.False(t, IsCategoryEnabled(CategoryPresence))
	assert.True(t, IsCategoryEnabled(CategoryAssistant))
}

func TestWithRequestIDAddsField(t *testing.T) {
	logs := observe(t, nil)

	WithRequestID(CategorySnapshot, "req-1").Info("GET /chats")

	entries := logs.FilterField(zap.String("req", "req-1")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "GET /chats", entries[0].Message)
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, nil)

	timer := StartTimer(CategoryPoll, "slow op")
	timer.start = time.Now().Add(-time.Second)
	timer.StopWithThreshold(10 * time.Millisecond)

	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestInitializeWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matchchat.log")
	require.NoError(t, Initialize(Options{Level: "debug", Format: "json", File: path}))
	t.Cleanup(func() { SetBase(zap.NewNop(), nil) })

	Boot("hello")
	CloseAll()
	assert.FileExists(t, path)
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	err := Initialize(Options{Level: "loud"})
	assert.Error(t, err)
}
