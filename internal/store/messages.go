package store

import (
	"sort"
	"sync"

	"matchchat/internal/logging"
	"matchchat/internal/types"
)

// localIDBase seeds ids for locally synthesized messages. They stay negative,
// never collide with server ids, and grow so later local messages sort after
// earlier ones at equal timestamps.
const localIDBase int64 = -1 << 62

// MessageStore holds one ordered, deduplicated log per channel.
// Merges only ever add ids; a stored message is never altered or removed.
type MessageStore struct {
	mu        sync.RWMutex
	logs      map[int64][]types.Message
	nextLocal int64
	sink      types.ArchiveSink
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		logs:      make(map[int64][]types.Message),
		nextLocal: localIDBase,
	}
}

// SetSink installs a write-through archive. Pass nil to disable.
func (s *MessageStore) SetSink(sink types.ArchiveSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// MergeLogs unions existing and batch by message id and sorts the result by
// (timestamp, id). Existing entries win over batch entries with the same id.
// It is idempotent and order-insensitive for overlapping batches.
func MergeLogs(existing, batch []types.Message) (merged []types.Message, added []types.Message) {
	byID := make(map[int64]types.Message, len(existing)+len(batch))
	for _, m := range existing {
		byID[m.ID] = m
	}
	for _, m := range batch {
		if _, ok := byID[m.ID]; ok {
			continue
		}
		byID[m.ID] = m
		added = append(added, m)
	}

	merged = make([]types.Message, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	types.SortMessages(merged)
	return merged, added
}

// Merge reconciles a poll snapshot for channelID into the stored log and
// returns how many messages were new.
func (s *MessageStore) Merge(channelID int64, batch []types.Message) int {
	normalized := make([]types.Message, len(batch))
	for i, m := range batch {
		m.ChannelID = channelID
		normalized[i] = m
	}

	s.mu.Lock()
	merged, added := MergeLogs(s.logs[channelID], normalized)
	s.logs[channelID] = merged
	sink := s.sink
	s.mu.Unlock()

	if len(added) > 0 {
		logging.StoreDebug("channel %d: merged %d new of %d (log=%d)", channelID, len(added), len(batch), len(merged))
		s.persist(sink, added)
	}
	return len(added)
}

// Append inserts one confirmed or locally generated message, keeping the log
// sorted. It reports false if the id is already stored.
func (s *MessageStore) Append(channelID int64, msg types.Message) bool {
	msg.ChannelID = channelID

	s.mu.Lock()
	log := s.logs[channelID]
	for _, m := range log {
		if m.ID == msg.ID {
			s.mu.Unlock()
			return false
		}
	}
	idx := sort.Search(len(log), func(i int) bool { return msg.Before(log[i]) })
	log = append(log, types.Message{})
	copy(log[idx+1:], log[idx:])
	log[idx] = msg
	s.logs[channelID] = log
	sink := s.sink
	s.mu.Unlock()

	s.persist(sink, []types.Message{msg})
	return true
}

func (s *MessageStore) persist(sink types.ArchiveSink, msgs []types.Message) {
	if sink == nil {
		return
	}
	if err := sink.SaveMessages(msgs); err != nil {
		logging.StoreWarn("archive write failed: %v", err)
	}
}

// NextLocalID returns a fresh id for a locally synthesized message.
func (s *MessageStore) NextLocalID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLocal++
	return s.nextLocal
}

// Log returns a copy of channelID's ordered log.
func (s *MessageStore) Log(channelID int64) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Message(nil), s.logs[channelID]...)
}

// Last returns the newest message in channelID.
func (s *MessageStore) Last(channelID int64) (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[channelID]
	if len(log) == 0 {
		return types.Message{}, false
	}
	return log[len(log)-1], true
}

// Len returns the number of messages stored for channelID.
func (s *MessageStore) Len(channelID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[channelID])
}

// Restore merges previously archived logs without writing them back.
func (s *MessageStore) Restore(logs map[int64][]types.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for channelID, batch := range logs {
		merged, added := MergeLogs(s.logs[channelID], batch)
		s.logs[channelID] = merged
		total += len(added)
	}
	return total
}
