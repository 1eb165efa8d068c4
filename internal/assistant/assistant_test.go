package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"matchchat/internal/config"
	"matchchat/internal/store"
	"matchchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	replies []string
	err     error
	prompts []string
}

func (s *scriptedGenerator) Name() string { return "scripted" }

func (s *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func TestAskBuildsPromptFromTranscript(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Try the library.", "Tuesday at 5pm."}}
	c := NewChannel(gen, 7, store.NewMessageStore())

	reply, err := c.Ask(context.Background(), "Where should we study?")
	require.NoError(t, err)
	assert.Equal(t, types.AssistantSenderID, reply.SenderID)
	assert.Equal(t, "user: Where should we study?", gen.prompts[0])

	_, err = c.Ask(context.Background(), "When?")
	require.NoError(t, err)
	assert.Equal(t, "user: Where should we study?\nassistant: Try the library.\nuser: When?", gen.prompts[1])

	tr := c.Transcript()
	require.Len(t, tr, 4)
	assert.True(t, types.IsSorted(tr))
	for _, m := range tr {
		assert.Equal(t, types.AssistantChannelID, m.ChannelID)
	}
}

func TestTranscriptLivesInMessageStore(t *testing.T) {
	messages := store.NewMessageStore()
	gen := &scriptedGenerator{replies: []string{"Meet at noon."}}
	c := NewChannel(gen, 7, messages)

	clock := time.UnixMilli(5_000)
	c.now = func() time.Time {
		clock = clock.Add(-time.Second)
		return clock
	}

	_, err := c.Ask(context.Background(), "When?")
	require.NoError(t, err)

	log := messages.Log(types.AssistantChannelID)
	require.Len(t, log, 2)
	assert.Equal(t, "When?", log[0].Text)
	assert.Equal(t, "Meet at noon.", log[1].Text)
	assert.True(t, types.IsSorted(log))
	assert.Less(t, log[0].ID, int64(0))
	assert.Equal(t, log, c.Transcript())
}

func TestAskRejectsBlankPrompt(t *testing.T) {
	gen := &scriptedGenerator{}
	c := NewChannel(gen, 7, store.NewMessageStore())

	_, err := c.Ask(context.Background(), "   ")
	assert.True(t, types.IsValidation(err))
	assert.Empty(t, gen.prompts)
	assert.Empty(t, c.Transcript())
}

func TestFailureBecomesSystemMessage(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	c := NewChannel(gen, 7, store.NewMessageStore())

	_, err := c.Ask(context.Background(), "hello")
	var gf *types.GenerationFailure
	require.True(t, errors.As(err, &gf))

	tr := c.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, int64(7), tr[0].SenderID)
	assert.True(t, tr[1].IsSystem())
	assert.Len(t, gen.prompts, 1)
}

func TestEmptyReplyIsFailure(t *testing.T) {
	c := NewChannel(&scriptedGenerator{replies: []string{"  "}}, 7, store.NewMessageStore())
	_, err := c.Ask(context.Background(), "hello")
	var gf *types.GenerationFailure
	assert.True(t, errors.As(err, &gf))
}

func TestTemplatesPrependInstruction(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Ideas", "Times"}}
	c := NewChannel(gen, 7, store.NewMessageStore())
	c.append(7, "I like calculus")

	_, err := c.Suggest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, suggestInstruction+"\n\nuser: I like calculus", gen.prompts[0])

	_, err = c.Schedule(context.Background())
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[1], scheduleInstruction+"\n\n")
	assert.Contains(t, gen.prompts[1], "assistant: Ideas")

	assert.Len(t, c.Transcript(), 3)
}

func TestNilGenerator(t *testing.T) {
	c := NewChannel(nil, 7, store.NewMessageStore())
	_, err := c.Ask(context.Background(), "hi")
	var gf *types.GenerationFailure
	assert.True(t, errors.As(err, &gf))
	last, ok := c.Last()
	require.True(t, ok)
	assert.True(t, last.IsSystem())
}

func TestRenderPromptSkipsSystem(t *testing.T) {
	got := RenderPrompt("", []types.Message{
		{SenderID: 7, Text: "a"},
		{SenderID: types.SystemSenderID, Text: "oops"},
		{SenderID: types.AssistantSenderID, Text: "b"},
	})
	assert.Equal(t, "user: a\nassistant: b", got)
}

func TestOpenAIGenerator(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":" Meet at 5. "}}]}`)
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator("sk-test", "", srv.URL, time.Second)
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), "user: when?")
	require.NoError(t, err)
	assert.Equal(t, "Meet at 5.", text)
	assert.Equal(t, defaultOpenAIModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user: when?", got.Messages[0].Content)
}

func TestOpenAIGeneratorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator("sk-test", "m", srv.URL, time.Second)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "x")
	assert.True(t, types.IsRejected(err))
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.AssistantConfig{Provider: "openai"}, time.Second)
	assert.Error(t, err)

	_, err = NewGenerator(context.Background(), config.AssistantConfig{Provider: "gemini"}, time.Second)
	assert.Error(t, err)

	_, err = NewGenerator(context.Background(), config.AssistantConfig{Provider: "bard"}, time.Second)
	assert.Error(t, err)

	gen, err := NewGenerator(context.Background(), config.AssistantConfig{Provider: "openai", APIKey: "k", Model: "m"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "openai:m", gen.Name())

	gem, err := NewGenerator(context.Background(), config.AssistantConfig{Provider: "gemini", APIKey: "k"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "gemini:"+defaultGeminiModel, gem.Name())
}
