package normalize

import (
	"testing"

	"github.com/haystackbot/haystack/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = "UBOT"

func TestNormalize_DropRules(t *testing.T) {
	n := New(botID)

	tests := []struct {
		name string
		ev   core.RawEvent
	}{
		{
			name: "own message",
			ev:   core.RawEvent{User: botID, Channel: "C1", Text: "echo", TS: "2.0"},
		},
		{
			name: "deleted message subtype",
			ev:   core.RawEvent{User: "U1", Subtype: "message_deleted", Channel: "C1", TS: "2.0"},
		},
		{
			name: "public channel without mention",
			ev:   core.RawEvent{User: "U1", Channel: "C1", Text: "just chatting", TS: "2.0"},
		},
		{
			name: "mention with empty remainder",
			ev:   core.RawEvent{User: "U1", Channel: "C1", Text: "<@UBOT>", TS: "2.0"},
		},
		{
			name: "missing user",
			ev:   core.RawEvent{Channel: "C1", Text: "<@UBOT> hi", TS: "2.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := n.Normalize(tt.ev)
			assert.False(t, ok)
		})
	}
}

func TestNormalize_ChannelMention(t *testing.T) {
	n := New(botID)

	turn, ok := n.Normalize(core.RawEvent{
		ID:      "Ev1",
		Type:    core.EventMention,
		User:    "U1",
		Channel: "C1",
		Text:    "<@UBOT> find the deploy runbook",
		TS:      "1700000000.000100",
	})
	require.True(t, ok)
	assert.Equal(t, "chan:C1:1700000000.000100", turn.ConversationKey)
	assert.Equal(t, "find the deploy runbook", turn.Text)
	assert.False(t, turn.IsThreadReply)
	assert.Equal(t, "1700000000.000100", turn.ThreadTS)
}

func TestNormalize_ThreadReplyKeysByRoot(t *testing.T) {
	n := New(botID)

	turn, ok := n.Normalize(core.RawEvent{
		Type:     core.EventThreadReply,
		User:     "U2",
		Channel:  "C1",
		Text:     "what about staging?",
		TS:       "1700000100.000200",
		ThreadTS: "1700000000.000100",
	})
	require.True(t, ok)
	assert.True(t, turn.IsThreadReply)
	assert.Equal(t, "chan:C1:1700000000.000100", turn.ConversationKey)
}

func TestNormalize_DirectMessageKeysByUser(t *testing.T) {
	n := New(botID)

	turn, ok := n.Normalize(core.RawEvent{
		Type:        core.EventDirectMessage,
		User:        "U3",
		Channel:     "D1",
		ChannelType: "im",
		Text:        "summarize this thread please",
		TS:          "1700000000.000300",
	})
	require.True(t, ok)
	assert.Equal(t, "dm:U3", turn.ConversationKey)
	assert.False(t, turn.IsThreadReply)
}

func TestNormalize_StripsMentionInThread(t *testing.T) {
	n := New(botID)

	turn, ok := n.Normalize(core.RawEvent{
		Type:     core.EventThreadReply,
		User:     "U1",
		Channel:  "C1",
		Text:     "  <@UBOT> summarize this thread  ",
		TS:       "1700000100.1",
		ThreadTS: "1700000000.1",
	})
	require.True(t, ok)
	assert.Equal(t, "summarize this thread", turn.Text)
}
