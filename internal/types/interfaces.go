package types

import (
	"context"
)

// Generator produces assistant replies from a single flattened prompt.
// Implementations make exactly one call per invocation: no streaming, no retry.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ArchiveSink receives messages as they enter the message store so they can be persisted.
type ArchiveSink interface {
	SaveMessages(msgs []Message) error
}
