// Package types provides the shared chat domain types used across matchchat packages.
// This package exists to break import cycles between the snapshot client, the stores and the engine.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// CHANNELS
// =============================================================================

// AssistantChannelID is reserved for the local assistant pseudo-channel.
// The server never returns it; the directory synthesizes it at startup.
const AssistantChannelID int64 = -1

// AssistantSenderID marks messages authored by the assistant.
const AssistantSenderID int64 = -1

// SystemSenderID marks locally synthesized system messages (send failures, generation failures).
// Negative sender ids are reserved for local authors; the snapshot client
// rejects them on the wire.
const SystemSenderID int64 = -2

// ChannelKind is the conversation scope of a channel.
type ChannelKind int

const (
	KindIndividual ChannelKind = iota
	KindGroup
	KindAssistant
)

func (k ChannelKind) String() string {
	switch k {
	case KindIndividual:
		return "individual"
	case KindGroup:
		return "group"
	case KindAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseChannelKind maps the backend's chat type strings onto a ChannelKind.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "individual", "direct", "dm", "private", "":
		return KindIndividual, nil
	case "group":
		return KindGroup, nil
	case "assistant", "ai":
		return KindAssistant, nil
	}
	return KindIndividual, fmt.Errorf("unknown channel kind %q", s)
}

// Participant is a member of a channel as embedded in channel snapshots.
type Participant struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Channel is a conversation scope: one-to-one, group, or the assistant.
// Name and Image are the channel's own stored values; DisplayName and
// ProfileImage are what the directory derives for display.
type Channel struct {
	ID              int64         `json:"id"`
	Kind            ChannelKind   `json:"kind"`
	Name            string        `json:"name,omitempty"`
	Image           string        `json:"image,omitempty"`
	DisplayName     string        `json:"display_name"`
	ProfileImage    string        `json:"profile_image,omitempty"`
	Participants    []Participant `json:"participants"`
	LastPreviewText string        `json:"last_preview_text,omitempty"`
}

// IsAssistant reports whether c is the local assistant pseudo-channel.
func (c Channel) IsAssistant() bool {
	return c.ID == AssistantChannelID || c.Kind == KindAssistant
}

// HasParticipant reports whether userID is a member of c.
func (c Channel) HasParticipant(userID int64) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the member ids in snapshot order.
func (c Channel) ParticipantIDs() []int64 {
	ids := make([]int64, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// Counterpart returns the first participant that is not selfID.
func (c Channel) Counterpart(selfID int64) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy so callers can't alias directory state.
func (c Channel) Clone() Channel {
	out := c
	if c.Participants != nil {
		out.Participants = append([]Participant(nil), c.Participants...)
	}
	return out
}

// =============================================================================
// MESSAGES
// =============================================================================

// Message is a single chat message. Within a channel ids are unique and a
// stored message never changes.
type Message struct {
	ID              int64  `json:"id"`
	ChannelID       int64  `json:"channel_id"`
	SenderID        int64  `json:"sender_id"`
	Text            string `json:"text"`
	TimestampMillis int64  `json:"timestamp_ms"`
	AvatarRef       string `json:"avatar_ref,omitempty"`
}

// Before reports whether m sorts before o: timestamp ascending, ties by id ascending.
func (m Message) Before(o Message) bool {
	if m.TimestampMillis != o.TimestampMillis {
		return m.TimestampMillis < o.TimestampMillis
	}
	return m.ID < o.ID
}

// IsSystem reports whether m was synthesized locally to surface a failure.
func (m Message) IsSystem() bool {
	return m.SenderID == SystemSenderID
}

// SortMessages orders msgs in place by (TimestampMillis, ID).
func SortMessages(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}

// IsSorted reports whether msgs respects the display ordering.
func IsSorted(msgs []Message) bool {
	return sort.SliceIsSorted(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}

// =============================================================================
// PRESENCE
// =============================================================================

// OnlineStatus is the counterpart's connection state.
type OnlineStatus int

const (
	Offline OnlineStatus = iota
	Online
)

func (s OnlineStatus) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// ParseOnlineStatus accepts the backend's status strings.
func ParseOnlineStatus(s string) OnlineStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "active", "true", "1":
		return Online
	}
	return Offline
}

// Presence is the ephemeral typing/online signal for one user.
type Presence struct {
	UserID int64        `json:"user_id"`
	Typing bool         `json:"typing"`
	Online OnlineStatus `json:"online_status"`
}

// IdlePresence is the reset state used when no channel is tracked.
func IdlePresence(userID int64) Presence {
	return Presence{UserID: userID, Typing: false, Online: Offline}
}
