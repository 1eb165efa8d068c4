// Package outbound carries user-initiated writes to the backend: sending
// messages, group membership changes, typing, block and report.
//
// Successful writes are applied to local state straight away so the user sees
// them before the next poll. Failures are surfaced once and never retried.
package outbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"matchchat/internal/directory"
	"matchchat/internal/logging"
	"matchchat/internal/metrics"
	"matchchat/internal/snapshot"
	"matchchat/internal/store"
	"matchchat/internal/types"
)

// Operation names used for metrics and logs.
const (
	OpSend   = "send"
	OpCreate = "create_group"
	OpUpdate = "update_group"
	OpTyping = "typing"
	OpBlock  = "block"
	OpReport = "report"
)

// Dispatcher sends messages and other fire-once actions for one user.
type Dispatcher struct {
	backend  snapshot.Backend
	messages *store.MessageStore
	dir      *directory.Directory
	selfID   int64
	now      func() time.Time
}

// NewDispatcher wires a dispatcher to the shared stores.
func NewDispatcher(backend snapshot.Backend, messages *store.MessageStore, dir *directory.Directory) *Dispatcher {
	return &Dispatcher{
		backend:  backend,
		messages: messages,
		dir:      dir,
		selfID:   dir.SelfID(),
		now:      time.Now,
	}
}

// Send posts text to channelID. On success the server-confirmed message is
// appended and becomes the channel preview. On failure a system message is
// appended to the channel and the error is returned.
func (d *Dispatcher) Send(ctx context.Context, channelID int64, text string) (types.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		err := types.NewValidationError("text", "message is empty")
		metrics.ObserveOutbound(OpSend, err)
		return types.Message{}, err
	}
	if channelID == types.AssistantChannelID {
		err := types.NewValidationError("channel", "the assistant channel is not a backend channel")
		metrics.ObserveOutbound(OpSend, err)
		return types.Message{}, err
	}

	msg, err := d.backend.SendMessage(ctx, channelID, d.selfID, trimmed)
	metrics.ObserveOutbound(OpSend, err)
	if err != nil {
		logging.OutboundWarn("send to channel %d failed: %v", channelID, err)
		d.Notice(channelID, fmt.Sprintf("Message not sent: %s", reason(err)))
		return types.Message{}, err
	}

	d.messages.Append(channelID, msg)
	d.dir.UpdatePreview(channelID, msg.Text)
	logging.Outbound("sent message %d to channel %d", msg.ID, channelID)
	return msg, nil
}

// Notice appends a local system message to channelID.
func (d *Dispatcher) Notice(channelID int64, text string) types.Message {
	m := types.Message{
		ID:              d.messages.NextLocalID(),
		ChannelID:       channelID,
		SenderID:        types.SystemSenderID,
		Text:            text,
		TimestampMillis: d.now().UnixMilli(),
	}
	d.messages.Append(channelID, m)
	return m
}

// SetTyping publishes the local typing flag. Failures are only logged.
func (d *Dispatcher) SetTyping(ctx context.Context, typing bool) error {
	err := d.backend.SetTyping(ctx, d.selfID, typing)
	metrics.ObserveOutbound(OpTyping, err)
	if err != nil {
		logging.OutboundWarn("set typing=%v failed: %v", typing, err)
	}
	return err
}

// Block blocks targetID.
func (d *Dispatcher) Block(ctx context.Context, targetID int64) error {
	if err := d.validateTarget(targetID); err != nil {
		metrics.ObserveOutbound(OpBlock, err)
		return err
	}
	err := d.backend.BlockUser(ctx, d.selfID, targetID)
	metrics.ObserveOutbound(OpBlock, err)
	if err != nil {
		logging.OutboundError("block user %d failed: %v", targetID, err)
		return err
	}
	logging.Outbound("blocked user %d", targetID)
	return nil
}

// Report files a report against targetID with an optional reason.
func (d *Dispatcher) Report(ctx context.Context, targetID int64, why string) error {
	if err := d.validateTarget(targetID); err != nil {
		metrics.ObserveOutbound(OpReport, err)
		return err
	}
	err := d.backend.ReportUser(ctx, d.selfID, targetID, strings.TrimSpace(why))
	metrics.ObserveOutbound(OpReport, err)
	if err != nil {
		logging.OutboundError("report user %d failed: %v", targetID, err)
		return err
	}
	logging.Outbound("reported user %d", targetID)
	return nil
}

func (d *Dispatcher) validateTarget(targetID int64) error {
	if targetID <= 0 {
		return types.NewValidationError("target", "no user selected")
	}
	if targetID == d.selfID {
		return types.NewValidationError("target", "cannot target yourself")
	}
	return nil
}

// reason renders err for an inline notice.
func reason(err error) string {
	switch types.Classify(err) {
	case types.ClassTransient:
		return "network problem, try again"
	default:
		return err.Error()
	}
}
