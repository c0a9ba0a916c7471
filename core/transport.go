package core

import "context"

// Sink posts replies back to the chat platform. Fire-and-forget from the
// core's perspective; delivery failures are logged by the caller, not fatal.
type Sink interface {
	Send(ctx context.Context, reply OutboundReply) error
}

// Source delivers raw platform events. The engine consumes the channel
// without blocking the transport's delivery goroutine for long operations.
type Source interface {
	Events() <-chan RawEvent
}

// ThreadMessage is one message of a fetched channel thread, oldest first.
type ThreadMessage struct {
	User string
	Text string
	TS   string
}

// ThreadFetcher retrieves the full message list of a channel thread from the
// transport collaborator. A missing thread yields ErrNotFound.
type ThreadFetcher interface {
	FetchThread(ctx context.Context, channel, threadTS string) ([]ThreadMessage, error)
}
