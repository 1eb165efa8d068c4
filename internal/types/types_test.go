package types

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageOrdering(t *testing.T) {
	msgs := []Message{
		{ID: 2, TimestampMillis: 200},
		{ID: 3, TimestampMillis: 150},
		{ID: 1, TimestampMillis: 100},
		{ID: 0, TimestampMillis: 150},
	}
	SortMessages(msgs)

	got := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.ID)
	}
	assert.Equal(t, []int64{1, 0, 3, 2}, got)
	assert.True(t, IsSorted(msgs))
}

func TestIsSystemUsesReservedSender(t *testing.T) {
	assert.True(t, Message{ID: -3, SenderID: SystemSenderID}.IsSystem())
	assert.False(t, Message{ID: 12, SenderID: 0, Text: "from user zero"}.IsSystem())
	assert.False(t, Message{SenderID: AssistantSenderID}.IsSystem())
}

func TestChannelCounterpart(t *testing.T) {
	ch := Channel{
		ID:   10,
		Kind: KindIndividual,
		Participants: []Participant{
			{ID: 7, Name: "me"},
			{ID: 9, Name: "Dana"},
		},
	}

	p, ok := ch.Counterpart(7)
	require.True(t, ok)
	assert.Equal(t, int64(9), p.ID)
	assert.True(t, ch.HasParticipant(9))
	assert.False(t, ch.HasParticipant(3))
	assert.Equal(t, []int64{7, 9}, ch.ParticipantIDs())

	_, ok = Channel{Participants: []Participant{{ID: 7}}}.Counterpart(7)
	assert.False(t, ok)
}

func TestChannelClone(t *testing.T) {
	ch := Channel{ID: 1, Participants: []Participant{{ID: 1}}}
	c := ch.Clone()
	c.Participants[0].ID = 99
	assert.Equal(t, int64(1), ch.Participants[0].ID)
}

func TestParseChannelKind(t *testing.T) {
	k, err := ParseChannelKind("Group")
	require.NoError(t, err)
	assert.Equal(t, KindGroup, k)

	k, err = ParseChannelKind("")
	require.NoError(t, err)
	assert.Equal(t, KindIndividual, k)

	_, err = ParseChannelKind("broadcast")
	assert.Error(t, err)
}

func TestParseOnlineStatus(t *testing.T) {
	assert.Equal(t, Online, ParseOnlineStatus("ONLINE"))
	assert.Equal(t, Offline, ParseOnlineStatus("away"))
	assert.Equal(t, Offline, ParseOnlineStatus(""))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"timeout", &NetworkTimeoutError{Op: "list", Err: context.DeadlineExceeded}, ClassTransient},
		{"4xx", &ServerRejectedError{Op: "send", Status: 403}, ClassRejected},
		{"5xx", &ServerRejectedError{Op: "send", Status: 502}, ClassTransient},
		{"429", &ServerRejectedError{Op: "send", Status: 429}, ClassTransient},
		{"validation", NewValidationError("name", "empty"), ClassRejected},
		{"malformed", &MalformedPayloadError{Op: "presence", Reason: "missing id"}, ClassRejected},
		{"wrapped rejection", fmt.Errorf("outer: %w", &ServerRejectedError{Status: 404}), ClassRejected},
		{"unknown", fmt.Errorf("boom"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("wrap: %w", NewValidationError("text", "empty"))))
	assert.False(t, IsValidation(&GenerationFailure{Err: fmt.Errorf("x")}))
}
