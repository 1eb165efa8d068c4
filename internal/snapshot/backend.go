// Package snapshot is the request/response boundary to the chat backend.
//
// Every payload is validated and normalized here so the rest of the engine
// only sees well-formed types.Channel, types.Message and types.Presence values.
// Failures are reported as typed errors from internal/types and never panic.
package snapshot

import (
	"context"

	"matchchat/internal/types"
)

// GroupRequest is the payload for group creation and updates.
type GroupRequest struct {
	Name           string  `json:"name"`
	ParticipantIDs []int64 `json:"participant_ids"`
	Image          string  `json:"image,omitempty"`
}

// Backend is the set of remote capabilities the engine polls and mutates.
// Read operations are idempotent.
type Backend interface {
	ListChannels(ctx context.Context, selfID int64) ([]types.Channel, error)
	ListMessages(ctx context.Context, channelID int64) ([]types.Message, error)
	GetPresence(ctx context.Context, userID int64) (types.Presence, error)

	SendMessage(ctx context.Context, channelID, senderID int64, text string) (types.Message, error)
	SetTyping(ctx context.Context, userID int64, typing bool) error
	CreateGroup(ctx context.Context, req GroupRequest) (types.Channel, error)
	UpdateGroup(ctx context.Context, channelID int64, req GroupRequest) (types.Channel, error)
	BlockUser(ctx context.Context, blockerID, targetID int64) error
	ReportUser(ctx context.Context, reporterID, targetID int64, reason string) error
}
