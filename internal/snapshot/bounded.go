package snapshot

import (
	"context"
	"errors"
	"time"

	"matchchat/internal/types"
)

// Bounded wraps a Backend so every call carries its own deadline. A call that
// runs past the deadline resolves as a NetworkTimeoutError.
type Bounded struct {
	next    Backend
	timeout time.Duration
}

// NewBounded returns next unchanged when timeout is not positive.
func NewBounded(next Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return next
	}
	return &Bounded{next: next, timeout: timeout}
}

func (b *Bounded) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.timeout)
}

// bound converts a deadline hit on our own timer into a transient timeout.
// A parent cancellation is passed through untouched.
func bound(parent, ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var nt *types.NetworkTimeoutError
		if !errors.As(err, &nt) {
			return &types.NetworkTimeoutError{Op: op, Err: context.DeadlineExceeded}
		}
	}
	return err
}

// runBounded runs fn on its own goroutine so a collaborator that ignores ctx
// still cannot hold the caller past the deadline.
func runBounded[T any](b *Bounded, parent context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, bound(parent, ctx, op, r.err)
	case <-ctx.Done():
		var zero T
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		return zero, &types.NetworkTimeoutError{Op: op, Err: context.DeadlineExceeded}
	}
}

func (b *Bounded) ListChannels(ctx context.Context, selfID int64) ([]types.Channel, error) {
	return runBounded(b, ctx, "list channels", func(ctx context.Context) ([]types.Channel, error) {
		return b.next.ListChannels(ctx, selfID)
	})
}

func (b *Bounded) ListMessages(ctx context.Context, channelID int64) ([]types.Message, error) {
	return runBounded(b, ctx, "list messages", func(ctx context.Context) ([]types.Message, error) {
		return b.next.ListMessages(ctx, channelID)
	})
}

func (b *Bounded) GetPresence(ctx context.Context, userID int64) (types.Presence, error) {
	return runBounded(b, ctx, "get presence", func(ctx context.Context) (types.Presence, error) {
		return b.next.GetPresence(ctx, userID)
	})
}

func (b *Bounded) SendMessage(ctx context.Context, channelID, senderID int64, text string) (types.Message, error) {
	return runBounded(b, ctx, "send message", func(ctx context.Context) (types.Message, error) {
		return b.next.SendMessage(ctx, channelID, senderID, text)
	})
}

func (b *Bounded) SetTyping(ctx context.Context, userID int64, typing bool) error {
	_, err := runBounded(b, ctx, "set typing", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.SetTyping(ctx, userID, typing)
	})
	return err
}

func (b *Bounded) CreateGroup(ctx context.Context, req GroupRequest) (types.Channel, error) {
	return runBounded(b, ctx, "create group", func(ctx context.Context) (types.Channel, error) {
		return b.next.CreateGroup(ctx, req)
	})
}

func (b *Bounded) UpdateGroup(ctx context.Context, channelID int64, req GroupRequest) (types.Channel, error) {
	return runBounded(b, ctx, "update group", func(ctx context.Context) (types.Channel, error) {
		return b.next.UpdateGroup(ctx, channelID, req)
	})
}

func (b *Bounded) BlockUser(ctx context.Context, blockerID, targetID int64) error {
	_, err := runBounded(b, ctx, "block user", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.BlockUser(ctx, blockerID, targetID)
	})
	return err
}

func (b *Bounded) ReportUser(ctx context.Context, reporterID, targetID int64, reason string) error {
	_, err := runBounded(b, ctx, "report user", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.ReportUser(ctx, reporterID, targetID, reason)
	})
	return err
}
