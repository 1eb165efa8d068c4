// Package snapshottest provides an in-memory snapshot.Backend for tests.
package snapshottest

import (
	"context"
	"sync"

	"matchchat/internal/snapshot"
	"matchchat/internal/types"
)

// Call records one backend invocation.
type Call struct {
	Op        string
	ChannelID int64
	UserID    int64
	TargetID  int64
	Text      string
	Group     snapshot.GroupRequest
	Typing    bool
}

// Backend is a scriptable fake. Zero value is ready to use.
type Backend struct {
	mu sync.Mutex

	Channels []types.Channel
	Messages map[int64][]types.Message
	Presence map[int64]types.Presence

	// Err, when set for an op name, is returned instead of a result.
	Err map[string]error
	// Gate, when set for a channel id, blocks ListMessages until it is closed
	// or the context ends.
	Gate map[int64]chan struct{}
	entered chan int64

	NextID    int64
	NextTS    int64
	calls     []Call
	groupSeed int64
}

// New returns an empty fake.
func New() *Backend {
	return &Backend{
		Messages: make(map[int64][]types.Message),
		Presence: make(map[int64]types.Presence),
		Err:      make(map[string]error),
		Gate:     make(map[int64]chan struct{}),
		NextID:   1000,
		NextTS:   1_000_000,
	}
}

func (b *Backend) record(c Call) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	return b.Err[c.Op]
}

// Calls returns every recorded call.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsFor returns the recorded calls for one op.
func (b *Backend) CallsFor(op string) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// SetErr scripts the error returned by op. Pass nil to clear it.
func (b *Backend) SetErr(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.Err, op)
		return
	}
	b.Err[op] = err
}

// SetMessages replaces the server-side history of a channel.
func (b *Backend) SetMessages(channelID int64, msgs []types.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Messages[channelID] = append([]types.Message(nil), msgs...)
}

// SetChannels replaces the server-side channel list.
func (b *Backend) SetChannels(chans []types.Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Channels = append([]types.Channel(nil), chans...)
}

// SetPresence sets the presence reported for a user.
func (b *Backend) SetPresence(p types.Presence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Presence[p.UserID] = p
}

// WatchEntries returns a channel that receives the channel id each time
// ListMessages starts. Sends never block; extra entries are dropped.
func (b *Backend) WatchEntries(buffer int) <-chan int64 {
	ch := make(chan int64, buffer)
	b.mu.Lock()
	b.entered = ch
	b.mu.Unlock()
	return ch
}

// Hold installs a gate for channelID and returns its release func.
func (b *Backend) Hold(channelID int64) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.Gate[channelID] = gate
	b.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (b *Backend) ListChannels(ctx context.Context, selfID int64) ([]types.Channel, error) {
	if err := b.record(Call{Op: "list_channels", UserID: selfID}); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Channel, len(b.Channels))
	for i, ch := range b.Channels {
		out[i] = ch.Clone()
	}
	return out, nil
}

func (b *Backend) ListMessages(ctx context.Context, channelID int64) ([]types.Message, error) {
	if err := b.record(Call{Op: "list_messages", ChannelID: channelID}); err != nil {
		return nil, err
	}

	b.mu.Lock()
	snap := append([]types.Message(nil), b.Messages[channelID]...)
	gate := b.Gate[channelID]
	entered := b.entered
	b.mu.Unlock()

	if entered != nil {
		select {
		case entered <- channelID:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snap, nil
}

func (b *Backend) GetPresence(ctx context.Context, userID int64) (types.Presence, error) {
	if err := b.record(Call{Op: "get_presence", UserID: userID}); err != nil {
		return types.Presence{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.Presence[userID]; ok {
		return p, nil
	}
	return types.IdlePresence(userID), nil
}

func (b *Backend) SendMessage(ctx context.Context, channelID, senderID int64, text string) (types.Message, error) {
	if err := b.record(Call{Op: "send_message", ChannelID: channelID, UserID: senderID, Text: text}); err != nil {
		return types.Message{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.NextID++
	b.NextTS++
	m := types.Message{ID: b.NextID, ChannelID: channelID, SenderID: senderID, Text: text, TimestampMillis: b.NextTS}
	b.Messages[channelID] = append(b.Messages[channelID], m)
	return m, nil
}

func (b *Backend) SetTyping(ctx context.Context, userID int64, typing bool) error {
	return b.record(Call{Op: "set_typing", UserID: userID, Typing: typing})
}

func (b *Backend) CreateGroup(ctx context.Context, req snapshot.GroupRequest) (types.Channel, error) {
	if err := b.record(Call{Op: "create_group", Group: req}); err != nil {
		return types.Channel{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groupSeed++
	ch := groupChannel(500+b.groupSeed, req)
	b.Channels = append(b.Channels, ch)
	return ch.Clone(), nil
}

func (b *Backend) UpdateGroup(ctx context.Context, channelID int64, req snapshot.GroupRequest) (types.Channel, error) {
	if err := b.record(Call{Op: "update_group", ChannelID: channelID, Group: req}); err != nil {
		return types.Channel{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := groupChannel(channelID, req)
	for i := range b.Channels {
		if b.Channels[i].ID == channelID {
			b.Channels[i] = ch
		}
	}
	return ch.Clone(), nil
}

func (b *Backend) BlockUser(ctx context.Context, blockerID, targetID int64) error {
	return b.record(Call{Op: "block_user", UserID: blockerID, TargetID: targetID})
}

func (b *Backend) ReportUser(ctx context.Context, reporterID, targetID int64, reason string) error {
	return b.record(Call{Op: "report_user", UserID: reporterID, TargetID: targetID, Text: reason})
}

func groupChannel(id int64, req snapshot.GroupRequest) types.Channel {
	ch := types.Channel{ID: id, Kind: types.KindGroup, Name: req.Name, Image: req.Image}
	for _, pid := range req.ParticipantIDs {
		ch.Participants = append(ch.Participants, types.Participant{ID: pid})
	}
	return ch
}

var _ snapshot.Backend = (*Backend)(nil)
