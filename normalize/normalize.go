// Package normalize converts heterogeneous transport events (mention, direct
// message, thread reply) into canonical core.InboundTurn records. The
// transform is pure aside from the drop decision: events not addressed to the
// bot are discarded here to prevent feedback loops.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haystackbot/haystack/core"
)

// Normalizer classifies raw events and resolves conversation keys
// deterministically: DMs key by user id, channel mentions and threads key by
// (channel id, thread root).
type Normalizer struct {
	botUserID string
}

// New creates a Normalizer for the given bot user id. The id is used both to
// drop the bot's own echoed messages and to strip mention tokens from text.
func New(botUserID string) *Normalizer {
	return &Normalizer{botUserID: botUserID}
}

// Normalize converts a raw event into an InboundTurn. The second return value
// is false when the event is dropped:
//
//   - the bot's own messages (feedback loop guard)
//   - deleted-message and other non-conversational subtypes
//   - public-channel messages that neither mention the bot nor reply inside a
//     thread the bot participates in
//
// The turn's Seq is left zero; the engine assigns it at enqueue time.
func (n *Normalizer) Normalize(ev core.RawEvent) (core.InboundTurn, bool) {
	if ev.Subtype != "" {
		return core.InboundTurn{}, false
	}
	if ev.User == "" || ev.User == n.botUserID {
		return core.InboundTurn{}, false
	}

	text := strings.TrimSpace(ev.Text)
	isDM := ev.ChannelType == "im" || ev.Type == core.EventDirectMessage
	mentioned := n.botUserID != "" && strings.Contains(text, mentionToken(n.botUserID))
	isThreadReply := ev.ThreadTS != "" && ev.ThreadTS != ev.TS

	if !isDM && !mentioned && !(isThreadReply && ev.Type == core.EventThreadReply) {
		return core.InboundTurn{}, false
	}

	if mentioned {
		text = strings.TrimSpace(strings.ReplaceAll(text, mentionToken(n.botUserID), ""))
	}
	if text == "" {
		return core.InboundTurn{}, false
	}

	turn := core.InboundTurn{
		SenderID:      ev.User,
		Text:          text,
		Timestamp:     eventTime(ev.TS),
		IsThreadReply: isThreadReply,
		Channel:       ev.Channel,
		ThreadTS:      threadRoot(ev),
	}
	if isDM {
		turn.ConversationKey = "dm:" + ev.User
	} else {
		turn.ConversationKey = fmt.Sprintf("chan:%s:%s", ev.Channel, threadRoot(ev))
	}
	return turn, true
}

// threadRoot resolves the thread anchor: the thread root for replies, the
// message's own timestamp for new top-level messages.
func threadRoot(ev core.RawEvent) string {
	if ev.ThreadTS != "" {
		return ev.ThreadTS
	}
	return ev.TS
}

func mentionToken(botUserID string) string {
	return "<@" + botUserID + ">"
}

// eventTime parses a platform "seconds.micros" timestamp, falling back to now.
func eventTime(ts string) time.Time {
	if sec, err := strconv.ParseFloat(ts, 64); err == nil && sec > 0 {
		return time.Unix(0, int64(sec*float64(time.Second))).UTC()
	}
	return time.Now().UTC()
}
