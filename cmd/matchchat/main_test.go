package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"matchchat/internal/chat"
	"matchchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchchat.yaml")
	body := "backend:\n  base_url: " + baseURL + "\n  request_timeout: 2s\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"MATCHCHAT_BACKEND_URL", "MATCHCHAT_TOKEN", "GEMINI_API_KEY", "OPENAI_API_KEY", "MATCHCHAT_ARCHIVE"} {
		t.Setenv(k, "")
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestChannelsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("user_id"))
		_, _ = io.WriteString(w, `[{"id": 1, "type": "individual", "participants": [{"id": 7, "name": "Me"}, {"id": 9, "name": "Dana"}], "last_message": "see you"}]`)
	}))
	defer srv.Close()

	out, err := runRoot(t, "channels", "--user", "7", "--env-file", "", "-c", writeConfig(t, srv.URL+"/api"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Study Assistant")
	assert.Contains(t, lines[1], "Dana")
	assert.Contains(t, lines[1], "see you")
}

func TestSendCommandValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	_, err := runRoot(t, "send", "5", "   ", "--user", "7", "--env-file", "", "-c", writeConfig(t, srv.URL))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Contains(t, err.Error(), "rejected")
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("abc")
	assert.Error(t, err)
}

func TestDescribeKeepsCause(t *testing.T) {
	cause := &types.ServerRejectedError{Op: "block user", Status: 404}
	err := describe("block", cause)

	var rejected *types.ServerRejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.Contains(t, err.Error(), "rejected")
}

func TestTailerPrintsEachMessageOnce(t *testing.T) {
	var out bytes.Buffer
	tail := newTailer(&out, 5)
	msgs := []types.Message{
		{ID: 1, SenderID: 9, Text: "hi", TimestampMillis: 1},
		{ID: 2, SenderID: types.SystemSenderID, Text: "Message not sent", TimestampMillis: 2},
	}

	tail.onChange(chat.View{Selected: 5, Messages: msgs[:1]})
	tail.onChange(chat.View{Selected: 5, Messages: msgs})
	tail.onChange(chat.View{Selected: 6, Messages: []types.Message{{ID: 3, Text: "other"}}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "9: hi")
	assert.Contains(t, lines[1], "* Message not sent")
}

func TestFormatAssistantMessage(t *testing.T) {
	got := formatMessage(types.Message{SenderID: types.AssistantSenderID, Text: "Try Tuesday"})
	assert.Contains(t, got, "assistant: Try Tuesday")
}
