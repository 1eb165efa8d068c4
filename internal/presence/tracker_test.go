package presence

import (
	"testing"

	"matchchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[int64]int64

func (m mapResolver) Counterpart(channelID int64) (int64, bool) {
	id, ok := m[channelID]
	return id, ok
}

func TestTrackIndividualOnly(t *testing.T) {
	r := mapResolver{1: 9}
	tr := NewTracker()

	userID, ok := tr.Track(r, 1)
	require.True(t, ok)
	assert.Equal(t, int64(9), userID)

	_, ok = tr.Track(r, 3)
	assert.False(t, ok)
	_, _, tracking := tr.Target()
	assert.False(t, tracking)

	_, ok = tr.Track(r, types.AssistantChannelID)
	assert.False(t, ok)
}

func TestApplyIgnoresOtherUsers(t *testing.T) {
	tr := NewTracker()
	tr.Track(mapResolver{1: 9}, 1)

	assert.False(t, tr.Apply(types.Presence{UserID: 4, Typing: true, Online: types.Online}))
	assert.False(t, tr.Current().Typing)

	assert.True(t, tr.Apply(types.Presence{UserID: 9, Typing: true, Online: types.Online}))
	assert.Equal(t, types.Presence{UserID: 9, Typing: true, Online: types.Online}, tr.Current())
}

func TestSwitchDropsPreviousTarget(t *testing.T) {
	r := mapResolver{1: 9, 2: 4}
	tr := NewTracker()
	tr.Track(r, 1)
	tr.Apply(types.Presence{UserID: 9, Online: types.Online})

	tr.Track(r, 2)
	assert.Equal(t, types.IdlePresence(4), tr.Current())
	assert.False(t, tr.Apply(types.Presence{UserID: 9, Typing: true}))
}

func TestResetIsIdle(t *testing.T) {
	tr := NewTracker()
	tr.Track(mapResolver{1: 9}, 1)
	tr.Apply(types.Presence{UserID: 9, Typing: true, Online: types.Online})

	tr.Reset()
	assert.Equal(t, types.IdlePresence(0), tr.Current())
	assert.False(t, tr.Apply(types.Presence{UserID: 9, Typing: true}))
}
