package capability

import (
	"context"

	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

// GeneralChat is the no-retrieval fallback: it answers conversationally from
// session history alone.
type GeneralChat struct {
	client *completion.Client
	logger logging.Logger
}

// NewGeneralChat constructs the fallback executor.
func NewGeneralChat(client *completion.Client, logger logging.Logger) *GeneralChat {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &GeneralChat{client: client, logger: logger}
}

// Execute implements core.Executor.
func (e *GeneralChat) Execute(ctx context.Context, turn core.InboundTurn, session *core.Session) core.OutboundReply {
	msgs := historyMessages(session)
	msgs = append(msgs, core.Message{Role: "user", Text: turn.Text})

	answer, err := e.client.Complete(ctx, completion.Prompt{
		System:   "You are a helpful assistant embedded in a team chat workspace. Answer concisely and conversationally.",
		Messages: msgs,
	}, completion.Options{Tier: completion.TierDeep})
	if err != nil {
		return failureReply(e.logger, turn, err)
	}
	return reply(turn, answer)
}
