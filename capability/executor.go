package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

// DefaultMaxModelCalls bounds completion calls per turn across all executors;
// chunked thread summaries are the main consumer.
const DefaultMaxModelCalls = 8

// User-safe failure texts, one per taxonomy kind. Raw error detail never
// reaches the reply.
const (
	rateLimitedText    = "I'm handling a lot of requests right now. Please try again shortly."
	unavailableText    = "Sorry, I'm having trouble reaching my language backend. Please try again in a few minutes."
	notFoundText       = "I couldn't find that. It may have been deleted, or I may not have access to it."
	genericFailureText = "I'm sorry, I couldn't process your request."
)

// reply anchors the outbound text to the turn's conversation and thread.
func reply(turn core.InboundTurn, text string) core.OutboundReply {
	return core.OutboundReply{
		ConversationKey: turn.ConversationKey,
		Channel:         turn.Channel,
		Text:            text,
		ThreadTS:        turn.ThreadTS,
	}
}

// failureReply translates a taxonomy error into a user-safe reply and logs it
// with severity matching the kind: InvalidRequest is a programming defect and
// logs at error level, the rest are expected operational noise.
func failureReply(logger logging.Logger, turn core.InboundTurn, err error) core.OutboundReply {
	switch {
	case errors.Is(err, core.ErrRateLimited):
		logger.Warn("turn failed: rate limited", "key", turn.ConversationKey, "error", err)
		return reply(turn, rateLimitedText)
	case errors.Is(err, core.ErrUnavailable):
		logger.Warn("turn failed: backend unavailable", "key", turn.ConversationKey, "error", err)
		return reply(turn, unavailableText)
	case errors.Is(err, core.ErrNotFound):
		logger.Warn("turn failed: target not found", "key", turn.ConversationKey, "error", err)
		return reply(turn, notFoundText)
	default:
		logger.Error("turn failed", "key", turn.ConversationKey, "error", err)
		return reply(turn, genericFailureText)
	}
}

// historyMessages flattens the session's exchange window into role-tagged
// prompt messages, oldest first.
func historyMessages(session *core.Session) []core.Message {
	history := session.History()
	msgs := make([]core.Message, 0, len(history)*2)
	for _, ex := range history {
		if ex.Turn.Text != "" {
			msgs = append(msgs, core.Message{Role: "user", Text: ex.Turn.Text})
		}
		if ex.Reply.Text != "" {
			msgs = append(msgs, core.Message{Role: "assistant", Text: ex.Reply.Text})
		}
	}
	return msgs
}

// transcript renders thread messages as "user: text" lines for prompts.
func transcript(msgs []core.ThreadMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "<@%s>: %s\n", m.User, m.Text)
	}
	return b.String()
}
