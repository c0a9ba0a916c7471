package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an inbound transport event.
type EventType string

const (
	// EventMention is a top-level @-mention of the bot in a channel.
	EventMention EventType = "mention"
	// EventDirectMessage is a message sent to the bot in a DM.
	EventDirectMessage EventType = "dm"
	// EventThreadReply is a reply inside an existing channel thread.
	EventThreadReply EventType = "thread_reply"
)

// RawEvent is a transport-level event exactly as delivered by the chat
// platform. It carries no routing decisions; the normalizer converts it into
// an InboundTurn or drops it.
type RawEvent struct {
	ID          string    // platform event id, used for duplicate suppression
	Type        EventType // best-effort classification by the transport
	Channel     string    // channel id ("" for DMs on some platforms)
	ChannelType string    // "im" for DMs, "channel" otherwise
	ThreadTS    string    // thread root timestamp, empty for top-level messages
	User        string    // sender user id
	Text        string    // raw message text including any mention tokens
	TS          string    // message timestamp (also the thread root for new threads)
	Subtype     string    // platform subtype (e.g. "message_deleted")
}

// InboundTurn is the canonical, immutable record of one user turn addressed
// to the bot. Created by the normalizer per accepted event, consumed by the
// router and executors, and discarded after dispatch.
type InboundTurn struct {
	ConversationKey string    // unique key scoping session state (see normalizer)
	Seq             uint64    // monotonic per-key sequence assigned at enqueue
	SenderID        string    // user id of the author
	Text            string    // message text with the bot mention stripped
	Timestamp       time.Time // arrival time
	IsThreadReply   bool      // true for replies inside an existing thread
	Channel         string    // originating channel id
	ThreadTS        string    // thread anchor for replies ("" for DMs without threads)
}

// OutboundReply is the single reply produced for one turn. Immutable; handed
// to the transport sink and then discarded.
type OutboundReply struct {
	ConversationKey string // key of the conversation being answered
	Channel         string // destination channel or DM id
	Text            string // user-visible reply text
	ThreadTS        string // optional thread anchor to reply inside
}

// Message is a single role-tagged line of conversational context used to
// build completion prompts.
type Message struct {
	Role string `json:"role"` // "user", "assistant" or "system"
	Text string `json:"text"`
}

// NewID generates a new unique identifier, used for correlating a turn's log
// entries across components.
func NewID() string { return uuid.NewString() }
