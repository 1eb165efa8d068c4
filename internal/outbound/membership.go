package outbound

import (
	"context"
	"fmt"
	"strings"

	"matchchat/internal/directory"
	"matchchat/internal/logging"
	"matchchat/internal/metrics"
	"matchchat/internal/snapshot"
	"matchchat/internal/types"
)

// Candidate is one entry of the member picker.
type Candidate struct {
	types.Participant
	Disabled bool
}

// Membership creates groups and adds members to them.
// Existing members can never be removed through it.
type Membership struct {
	backend    snapshot.Backend
	dir        *directory.Directory
	dispatcher *Dispatcher
	selfID     int64
}

// NewMembership wires a membership controller.
func NewMembership(backend snapshot.Backend, dir *directory.Directory, dispatcher *Dispatcher) *Membership {
	return &Membership{backend: backend, dir: dir, dispatcher: dispatcher, selfID: dir.SelfID()}
}

// CreateGroup creates a group named name with self plus memberIDs.
// It fails with a ValidationError, before any network call, when the trimmed
// name is empty or no member other than self is given.
func (m *Membership) CreateGroup(ctx context.Context, name string, memberIDs []int64) (types.Channel, error) {
	name = strings.TrimSpace(name)
	others := dedupe(memberIDs, m.selfID)

	var err error
	switch {
	case name == "":
		err = types.NewValidationError("name", "group name is empty")
	case len(others) == 0:
		err = types.NewValidationError("members", "a group needs at least one other member")
	}
	if err != nil {
		metrics.ObserveOutbound(OpCreate, err)
		return types.Channel{}, err
	}

	req := snapshot.GroupRequest{Name: name, ParticipantIDs: append([]int64{m.selfID}, others...)}
	ch, err := m.backend.CreateGroup(ctx, req)
	metrics.ObserveOutbound(OpCreate, err)
	if err != nil {
		logging.OutboundError("create group %q failed: %v", name, err)
		return types.Channel{}, err
	}

	ch = m.dir.Upsert(ch)
	logging.Outbound("created group %d %q with %d members", ch.ID, ch.Name, len(req.ParticipantIDs))
	return ch, nil
}

// UpdateGroup adds memberIDs to channelID. The submitted set is unioned with
// the current members, so ids missing from memberIDs are kept. When nothing
// new is added the channel is returned unchanged and no request is made.
// After a successful update a welcome message is sent to the channel.
func (m *Membership) UpdateGroup(ctx context.Context, channelID int64, memberIDs []int64) (types.Channel, error) {
	ch, ok := m.dir.Get(channelID)
	if !ok || ch.Kind != types.KindGroup {
		err := types.NewValidationError("channel", fmt.Sprintf("%d is not a known group", channelID))
		metrics.ObserveOutbound(OpUpdate, err)
		return types.Channel{}, err
	}

	existing := ch.ParticipantIDs()
	added := additions(existing, memberIDs)
	if len(added) == 0 {
		logging.OutboundWarn("update group %d: no new members", channelID)
		return ch, nil
	}

	req := snapshot.GroupRequest{Name: ch.Name, ParticipantIDs: append(append([]int64(nil), existing...), added...)}
	updated, err := m.backend.UpdateGroup(ctx, channelID, req)
	metrics.ObserveOutbound(OpUpdate, err)
	if err != nil {
		logging.OutboundError("update group %d failed: %v", channelID, err)
		m.dispatcher.Notice(channelID, fmt.Sprintf("Could not add members: %s", reason(err)))
		return types.Channel{}, err
	}

	updated = m.dir.Upsert(updated)
	logging.Outbound("group %d: added %v", channelID, added)

	if _, err := m.dispatcher.Send(ctx, channelID, welcomeText(updated)); err != nil {
		logging.OutboundWarn("welcome message for group %d failed: %v", channelID, err)
	}
	return updated, nil
}

// Selectable marks which candidates may be picked for channelID.
// Current members and self are disabled.
func (m *Membership) Selectable(channelID int64, candidates []types.Participant) []Candidate {
	members := map[int64]bool{m.selfID: true}
	if ch, ok := m.dir.Get(channelID); ok {
		for _, id := range ch.ParticipantIDs() {
			members[id] = true
		}
	}
	out := make([]Candidate, 0, len(candidates))
	for _, p := range candidates {
		out = append(out, Candidate{Participant: p, Disabled: members[p.ID]})
	}
	return out
}

func welcomeText(ch types.Channel) string {
	name := ch.DisplayName
	if name == "" {
		name = ch.Name
	}
	return fmt.Sprintf("Welcome to %s!", name)
}

// dedupe drops zero, duplicate and skip ids, keeping first-seen order.
func dedupe(ids []int64, skip int64) []int64 {
	seen := map[int64]bool{skip: true, 0: true}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// additions returns the ids in submitted that are not in existing.
func additions(existing, submitted []int64) []int64 {
	seen := map[int64]bool{0: true}
	for _, id := range existing {
		seen[id] = true
	}
	var out []int64
	for _, id := range submitted {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
