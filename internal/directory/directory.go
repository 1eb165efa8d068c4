// Package directory keeps the authoritative local channel list.
//
// Every directory poll replaces the list wholesale. The assistant
// pseudo-channel is always present and always first.
package directory

import (
	"sync"

	"matchchat/internal/logging"
	"matchchat/internal/types"
)

// AssistantDisplayName is the label of the pinned assistant channel.
const AssistantDisplayName = "Study Assistant"

// AssistantChannel returns the synthesized assistant pseudo-channel.
func AssistantChannel() types.Channel {
	return types.Channel{
		ID:              types.AssistantChannelID,
		Kind:            types.KindAssistant,
		Name:            AssistantDisplayName,
		DisplayName:     AssistantDisplayName,
		LastPreviewText: "Ask me for conversation ideas or meeting times",
	}
}

// Selection is the local-only side table for the selected channel.
type Selection struct {
	ChannelID    int64
	Participants []types.Participant
}

// Directory holds the merged channel list for one signed-in user.
type Directory struct {
	mu        sync.RWMutex
	selfID    int64
	channels  []types.Channel
	assistant types.Channel
	selection *Selection
}

// New creates a directory that already contains the assistant channel.
func New(selfID int64) *Directory {
	a := AssistantChannel()
	return &Directory{
		selfID:    selfID,
		assistant: a,
		channels:  []types.Channel{a},
	}
}

// Build derives the display fields for serverChannels and prepends assistant.
// Any server entry using the reserved assistant id is dropped, and only the
// first entry for each channel id is kept.
func Build(selfID int64, assistant types.Channel, serverChannels []types.Channel) []types.Channel {
	out := make([]types.Channel, 0, len(serverChannels)+1)
	out = append(out, assistant)
	seen := make(map[int64]struct{}, len(serverChannels))
	for _, ch := range serverChannels {
		if ch.ID == types.AssistantChannelID {
			continue
		}
		if _, dup := seen[ch.ID]; dup {
			logging.Get(logging.CategoryDirectory).Warn("dropping duplicate channel %d (%q) from snapshot", ch.ID, ch.Name)
			continue
		}
		seen[ch.ID] = struct{}{}
		out = append(out, derive(selfID, ch.Clone()))
	}
	return out
}

func derive(selfID int64, ch types.Channel) types.Channel {
	switch ch.Kind {
	case types.KindIndividual:
		if other, ok := ch.Counterpart(selfID); ok {
			ch.DisplayName = other.Name
			ch.ProfileImage = other.ProfileImage
		} else {
			ch.DisplayName = ch.Name
			ch.ProfileImage = ch.Image
		}
	default:
		ch.DisplayName = ch.Name
		ch.ProfileImage = ch.Image
	}
	return ch
}

// Merge replaces the directory with a fresh server snapshot and returns the new list.
func (d *Directory) Merge(serverChannels []types.Channel) []types.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = Build(d.selfID, d.assistant, serverChannels)
	d.refreshSelectionLocked()
	logging.DirectoryDebug("directory replaced: %d channels", len(d.channels))
	return cloneAll(d.channels)
}

// Upsert applies a single channel returned by a membership mutation.
// New channels are placed right after the assistant.
func (d *Directory) Upsert(ch types.Channel) types.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	derived := derive(d.selfID, ch.Clone())
	for i := range d.channels {
		if d.channels[i].ID == derived.ID {
			if derived.LastPreviewText == "" {
				derived.LastPreviewText = d.channels[i].LastPreviewText
			}
			d.channels[i] = derived
			d.refreshSelectionLocked()
			return derived.Clone()
		}
	}

	out := make([]types.Channel, 0, len(d.channels)+1)
	out = append(out, d.channels[0], derived)
	out = append(out, d.channels[1:]...)
	d.channels = out
	return derived.Clone()
}

// UpdatePreview sets the last-message preview for channelID.
func (d *Directory) UpdatePreview(channelID int64, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.channels {
		if d.channels[i].ID == channelID {
			d.channels[i].LastPreviewText = text
			return
		}
	}
}

// Channels returns a copy of the current ordered directory.
func (d *Directory) Channels() []types.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneAll(d.channels)
}

// Get looks up one channel.
func (d *Directory) Get(channelID int64) (types.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.channels {
		if ch.ID == channelID {
			return ch.Clone(), true
		}
	}
	return types.Channel{}, false
}

// Counterpart resolves the non-self participant of an individual channel.
// Group and assistant channels have none.
func (d *Directory) Counterpart(channelID int64) (int64, bool) {
	ch, ok := d.Get(channelID)
	if !ok || ch.Kind != types.KindIndividual {
		return 0, false
	}
	other, ok := ch.Counterpart(d.selfID)
	if !ok {
		return 0, false
	}
	return other.ID, true
}

// SelfID returns the signed-in user's id.
func (d *Directory) SelfID() int64 {
	return d.selfID
}

// Select records channelID in the selection side table. Pass 0 to clear.
func (d *Directory) Select(channelID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if channelID == 0 {
		d.selection = nil
		return
	}
	d.selection = &Selection{ChannelID: channelID}
	d.refreshSelectionLocked()
}

// Selection returns the selected channel and its full participant list.
func (d *Directory) Selection() (Selection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.selection == nil {
		return Selection{}, false
	}
	return Selection{
		ChannelID:    d.selection.ChannelID,
		Participants: append([]types.Participant(nil), d.selection.Participants...),
	}, true
}

func (d *Directory) refreshSelectionLocked() {
	if d.selection == nil {
		return
	}
	for _, ch := range d.channels {
		if ch.ID == d.selection.ChannelID {
			d.selection.Participants = append([]types.Participant(nil), ch.Participants...)
			return
		}
	}
}

func cloneAll(in []types.Channel) []types.Channel {
	out := make([]types.Channel, len(in))
	for i, ch := range in {
		out[i] = ch.Clone()
	}
	return out
}
