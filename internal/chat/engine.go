// Package chat wires the synchronization engine together.
//
// The Engine owns the shared state (directory, message store, presence) and
// serializes every poll merge through one mutex. Channel-scoped loops carry
// the scheduler generation they were started under; results that come back
// after a newer selection are dropped before they touch any state.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"matchchat/internal/assistant"
	"matchchat/internal/directory"
	"matchchat/internal/logging"
	"matchchat/internal/metrics"
	"matchchat/internal/outbound"
	"matchchat/internal/poller"
	"matchchat/internal/presence"
	"matchchat/internal/session"
	"matchchat/internal/snapshot"
	"matchchat/internal/store"
	"matchchat/internal/types"

	"golang.org/x/sync/singleflight"
)

// Archive is the optional persistent message log.
type Archive interface {
	types.ArchiveSink
	LoadAll() (map[int64][]types.Message, error)
}

// Intervals are the loop periods.
type Intervals struct {
	Directory time.Duration
	Messages  time.Duration
	Presence  time.Duration
}

// DefaultIntervals match the config defaults.
var DefaultIntervals = Intervals{
	Directory: 2 * time.Second,
	Messages:  time.Second,
	Presence:  1500 * time.Millisecond,
}

// Options configures an Engine.
type Options struct {
	Session   *session.Session
	Backend   snapshot.Backend
	Generator types.Generator
	Archive   Archive
	Intervals Intervals
}

// View is a consistent read of the engine state.
type View struct {
	Channels   []types.Channel
	Selected   int64
	Messages   []types.Message
	Presence   types.Presence
	Loops      map[poller.Loop]poller.LoopStatus
	Generation uint64
}

// Engine is the chat synchronization engine for one signed-in user.
type Engine struct {
	sess       *session.Session
	backend    snapshot.Backend
	sched      *poller.Scheduler
	dir        *directory.Directory
	messages   *store.MessageStore
	presence   *presence.Tracker
	dispatcher *outbound.Dispatcher
	membership *outbound.Membership
	assistant  *assistant.Channel
	refresh    singleflight.Group

	mu       sync.RWMutex // guards merges and selected
	selected int64

	selectMu sync.Mutex // serializes Select calls

	subsMu sync.RWMutex
	subs   []func(View)
}

// New builds an engine. No loop runs until Start.
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Session == nil {
		opts.Session = &session.Session{}
	}
	iv := opts.Intervals
	if iv.Directory <= 0 {
		iv.Directory = DefaultIntervals.Directory
	}
	if iv.Messages <= 0 {
		iv.Messages = DefaultIntervals.Messages
	}
	if iv.Presence <= 0 {
		iv.Presence = DefaultIntervals.Presence
	}

	e := &Engine{
		sess:     opts.Session,
		backend:  opts.Backend,
		dir:      directory.New(opts.Session.UserID),
		messages: store.NewMessageStore(),
		presence: presence.NewTracker(),
		sched: poller.New(context.Background(), map[poller.Loop]time.Duration{
			poller.LoopDirectory: iv.Directory,
			poller.LoopMessages:  iv.Messages,
			poller.LoopPresence:  iv.Presence,
		}),
	}
	e.dispatcher = outbound.NewDispatcher(e.backend, e.messages, e.dir)
	e.membership = outbound.NewMembership(e.backend, e.dir, e.dispatcher)
	e.assistant = assistant.NewChannel(opts.Generator, opts.Session.UserID, e.messages)

	if opts.Archive != nil {
		logs, err := opts.Archive.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to load archive: %w", err)
		}
		n := e.messages.Restore(logs)
		e.messages.SetSink(opts.Archive)
		logging.Store("warm start: %d archived messages in %d channels", n, len(logs))
	}
	return e, nil
}

// Start launches the directory loop. It does nothing while no user id is known.
func (e *Engine) Start() {
	if !e.sess.Known() {
		logging.BootWarn("no user id; directory polling disabled")
		return
	}
	e.sched.Start(poller.LoopDirectory, e.sched.Generation(), func(ctx context.Context, _ uint64) error {
		return e.RefreshDirectory(ctx)
	})
}

// Close stops every loop and waits for them.
func (e *Engine) Close() error {
	return e.sched.Close()
}

// SetIntervals changes loop periods on the fly.
func (e *Engine) SetIntervals(iv Intervals) {
	e.sched.SetInterval(poller.LoopDirectory, iv.Directory)
	e.sched.SetInterval(poller.LoopMessages, iv.Messages)
	e.sched.SetInterval(poller.LoopPresence, iv.Presence)
}

// OnChange registers fn to be called after any state change. fn runs on the
// goroutine that made the change and must not block.
func (e *Engine) OnChange(fn func(View)) {
	e.subsMu.Lock()
	e.subs = append(e.subs, fn)
	e.subsMu.Unlock()
}

func (e *Engine) notify() {
	e.subsMu.RLock()
	subs := append(([]func(View))(nil), e.subs...)
	e.subsMu.RUnlock()
	if len(subs) == 0 {
		return
	}
	v := e.View()
	for _, fn := range subs {
		fn(v)
	}
}

// RefreshDirectory fetches and merges the channel list. Concurrent callers
// share one request.
func (e *Engine) RefreshDirectory(ctx context.Context) error {
	_, err, _ := e.refresh.Do("directory", func() (interface{}, error) {
		chans, err := e.backend.ListChannels(ctx, e.sess.UserID)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.dir.Merge(chans)
		e.mu.Unlock()
		return nil, nil
	})
	if err == nil {
		e.notify()
	}
	return err
}

// Select makes channelID the active channel. The previous channel's message
// and presence loops are stopped before new ones start. Pass 0 to deselect.
func (e *Engine) Select(channelID int64) error {
	e.selectMu.Lock()
	defer e.selectMu.Unlock()

	var ch types.Channel
	if channelID != 0 {
		var ok bool
		if ch, ok = e.dir.Get(channelID); !ok {
			return types.NewValidationError("channel", fmt.Sprintf("unknown channel %d", channelID))
		}
	}

	e.mu.Lock()
	gen := e.sched.Advance()
	e.selected = channelID
	e.dir.Select(channelID)
	e.presence.Reset()
	target, tracked := int64(0), false
	if channelID != 0 && ch.Kind == types.KindIndividual {
		target, tracked = e.presence.Track(e.dir, channelID)
	}
	e.mu.Unlock()

	e.sched.Stop(poller.LoopMessages)
	e.sched.Stop(poller.LoopPresence)

	if channelID != 0 && !ch.IsAssistant() {
		e.sched.Start(poller.LoopMessages, gen, e.messageTask(channelID))
		if tracked {
			e.sched.Start(poller.LoopPresence, gen, e.presenceTask(target))
		}
	}

	logging.Poll("selected channel %d (gen=%d)", channelID, gen)
	e.notify()
	return nil
}

// Deselect clears the selection and stops channel loops.
func (e *Engine) Deselect() {
	_ = e.Select(0)
}

func (e *Engine) messageTask(channelID int64) poller.Task {
	return func(ctx context.Context, gen uint64) error {
		msgs, err := e.backend.ListMessages(ctx, channelID)
		if !e.sched.IsCurrent(gen) {
			return poller.ErrStale
		}
		if err != nil {
			return err
		}

		e.mu.Lock()
		if !e.sched.IsCurrent(gen) {
			e.mu.Unlock()
			return poller.ErrStale
		}
		added := e.messages.Merge(channelID, msgs)
		if added > 0 {
			if last, ok := e.messages.Last(channelID); ok && !last.IsSystem() {
				e.dir.UpdatePreview(channelID, last.Text)
			}
		}
		e.mu.Unlock()

		if added > 0 {
			metrics.MessagesMerged.Add(float64(added))
			e.notify()
		}
		return nil
	}
}

func (e *Engine) presenceTask(userID int64) poller.Task {
	return func(ctx context.Context, gen uint64) error {
		p, err := e.backend.GetPresence(ctx, userID)
		if !e.sched.IsCurrent(gen) {
			return poller.ErrStale
		}
		if err != nil {
			return err
		}

		e.mu.Lock()
		if !e.sched.IsCurrent(gen) {
			e.mu.Unlock()
			return poller.ErrStale
		}
		prev := e.presence.Current()
		applied := e.presence.Apply(p)
		e.mu.Unlock()

		if applied && prev != p {
			logging.PresenceDebug("user %d typing=%v %s", userID, p.Typing, p.Online)
			e.notify()
		}
		return nil
	}
}

// View returns the current read model.
func (e *Engine) View() View {
	e.mu.RLock()
	selected := e.selected
	v := View{
		Channels:   e.dir.Channels(),
		Selected:   selected,
		Presence:   e.presence.Current(),
		Generation: e.sched.Generation(),
	}
	e.mu.RUnlock()

	v.Messages = e.Messages(selected)
	v.Loops = e.sched.Status()
	return v
}

// Messages returns the ordered log of channelID.
func (e *Engine) Messages(channelID int64) []types.Message {
	if channelID == 0 {
		return nil
	}
	return e.messages.Log(channelID)
}

// Selected returns the active channel id, 0 if none.
func (e *Engine) Selected() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selected
}

// Selection returns the selected channel and its full participant list.
func (e *Engine) Selection() (directory.Selection, bool) {
	return e.dir.Selection()
}

// Send posts text to channelID.
func (e *Engine) Send(ctx context.Context, channelID int64, text string) (types.Message, error) {
	m, err := e.dispatcher.Send(ctx, channelID, text)
	e.notify()
	return m, err
}

// SetTyping publishes the local typing flag.
func (e *Engine) SetTyping(ctx context.Context, typing bool) error {
	return e.dispatcher.SetTyping(ctx, typing)
}

// CreateGroup creates a group with self and memberIDs.
func (e *Engine) CreateGroup(ctx context.Context, name string, memberIDs []int64) (types.Channel, error) {
	ch, err := e.membership.CreateGroup(ctx, name, memberIDs)
	if err == nil {
		e.notify()
	}
	return ch, err
}

// UpdateGroup adds memberIDs to a group. Existing members are kept.
func (e *Engine) UpdateGroup(ctx context.Context, channelID int64, memberIDs []int64) (types.Channel, error) {
	ch, err := e.membership.UpdateGroup(ctx, channelID, memberIDs)
	e.notify()
	return ch, err
}

// Candidates marks which users can still be added to channelID.
func (e *Engine) Candidates(channelID int64, users []types.Participant) []outbound.Candidate {
	return e.membership.Selectable(channelID, users)
}

// Block blocks targetID and refreshes the directory.
func (e *Engine) Block(ctx context.Context, targetID int64) error {
	if err := e.dispatcher.Block(ctx, targetID); err != nil {
		return err
	}
	e.refreshAfterModeration(ctx)
	return nil
}

// Report reports targetID and refreshes the directory.
func (e *Engine) Report(ctx context.Context, targetID int64, reason string) error {
	if err := e.dispatcher.Report(ctx, targetID, reason); err != nil {
		return err
	}
	e.refreshAfterModeration(ctx)
	return nil
}

func (e *Engine) refreshAfterModeration(ctx context.Context) {
	if err := e.RefreshDirectory(ctx); err != nil {
		logging.DirectoryDebug("refresh after moderation failed: %v", err)
	}
}

// Ask sends prompt to the assistant.
func (e *Engine) Ask(ctx context.Context, prompt string) (types.Message, error) {
	m, err := e.assistant.Ask(ctx, prompt)
	e.notify()
	return m, err
}

// Suggest asks the assistant for conversation starters.
func (e *Engine) Suggest(ctx context.Context) (types.Message, error) {
	m, err := e.assistant.Suggest(ctx)
	e.notify()
	return m, err
}

// Schedule asks the assistant for meeting times.
func (e *Engine) Schedule(ctx context.Context) (types.Message, error) {
	m, err := e.assistant.Schedule(ctx)
	e.notify()
	return m, err
}
