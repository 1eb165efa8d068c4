// Package assistant implements the local AI pseudo-channel.
//
// The transcript is the assistant channel's log in the shared message store.
// It is local-only and never archived. Each request renders the whole
// transcript into a single prompt and makes exactly one generation call.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"matchchat/internal/logging"
	"matchchat/internal/store"
	"matchchat/internal/types"
)

const (
	suggestInstruction = "You help university students find study partners. " +
		"Based on the conversation so far, suggest three short, friendly messages " +
		"the user could send to start or continue a chat with a potential study partner."
	scheduleInstruction = "You help university students plan study sessions. " +
		"Based on the conversation so far, propose three concrete meeting times " +
		"for this week with a one-line reason for each."
)

// Channel drives the assistant conversation for one user.
type Channel struct {
	gen      types.Generator
	selfID   int64
	messages *store.MessageStore
	now      func() time.Time

	askMu sync.Mutex // one generation call at a time
}

// NewChannel creates an assistant backed by gen that keeps its transcript in messages.
func NewChannel(gen types.Generator, selfID int64, messages *store.MessageStore) *Channel {
	return &Channel{gen: gen, selfID: selfID, messages: messages, now: time.Now}
}

// Ask appends prompt as a user message, sends the transcript to the generator
// and appends the reply. On failure a system message is appended instead and a
// GenerationFailure is returned.
func (c *Channel) Ask(ctx context.Context, prompt string) (types.Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.Message{}, types.NewValidationError("prompt", "prompt is empty")
	}

	c.askMu.Lock()
	defer c.askMu.Unlock()

	c.append(c.selfID, prompt)
	return c.generate(ctx, "ask", "")
}

// Suggest asks for conversation starters using the transcript so far.
func (c *Channel) Suggest(ctx context.Context) (types.Message, error) {
	c.askMu.Lock()
	defer c.askMu.Unlock()
	return c.generate(ctx, "suggest", suggestInstruction)
}

// Schedule asks for meeting-time proposals using the transcript so far.
func (c *Channel) Schedule(ctx context.Context) (types.Message, error) {
	c.askMu.Lock()
	defer c.askMu.Unlock()
	return c.generate(ctx, "schedule", scheduleInstruction)
}

func (c *Channel) generate(ctx context.Context, kind, instruction string) (types.Message, error) {
	if c.gen == nil {
		return c.fail(kind, errors.New("no assistant provider configured"))
	}

	prompt := RenderPrompt(instruction, c.Transcript())
	timer := logging.StartTimer(logging.CategoryAssistant, kind)
	reply, err := c.gen.Generate(ctx, prompt)
	timer.StopWithThreshold(10 * time.Second)
	if err != nil {
		return c.fail(kind, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return c.fail(kind, errors.New("empty reply"))
	}

	logging.AssistantDebug("%s via %s: prompt=%d chars reply=%d chars", kind, c.gen.Name(), len(prompt), len(reply))
	return c.append(types.AssistantSenderID, reply), nil
}

func (c *Channel) fail(kind string, err error) (types.Message, error) {
	logging.AssistantError("%s failed: %v", kind, err)
	c.append(types.SystemSenderID, "The assistant could not answer right now. Please try again.")
	return types.Message{}, &types.GenerationFailure{Err: err}
}

// append is only called under askMu, so entries land in call order.
func (c *Channel) append(senderID int64, text string) types.Message {
	m := types.Message{
		ID:              c.messages.NextLocalID(),
		ChannelID:       types.AssistantChannelID,
		SenderID:        senderID,
		Text:            text,
		TimestampMillis: c.now().UnixMilli(),
	}
	// A reply never sorts before its prompt, even if the clock steps backwards.
	if last, ok := c.messages.Last(types.AssistantChannelID); ok && m.TimestampMillis < last.TimestampMillis {
		m.TimestampMillis = last.TimestampMillis
	}
	c.messages.Append(types.AssistantChannelID, m)
	return m
}

// Transcript returns a copy of the assistant log in display order.
func (c *Channel) Transcript() []types.Message {
	return c.messages.Log(types.AssistantChannelID)
}

// Last returns the newest transcript entry.
func (c *Channel) Last() (types.Message, bool) {
	return c.messages.Last(types.AssistantChannelID)
}

// RenderPrompt flattens the transcript into "role: text" lines, optionally
// preceded by an instruction. System notices are not part of the prompt.
func RenderPrompt(instruction string, transcript []types.Message) string {
	var sb strings.Builder
	if instruction != "" {
		sb.WriteString(instruction)
		sb.WriteString("\n\n")
	}
	for _, m := range transcript {
		switch {
		case m.IsSystem():
			continue
		case m.SenderID == types.AssistantSenderID:
			fmt.Fprintf(&sb, "assistant: %s\n", m.Text)
		default:
			fmt.Fprintf(&sb, "user: %s\n", m.Text)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
