package capability

import (
	"context"

	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/internal/util"
	"github.com/haystackbot/haystack/logging"
)

// DefaultWorkflowCategories are the stock workflow categories offered when a
// deployment does not configure its own.
var DefaultWorkflowCategories = []string{
	"onboarding",
	"access requests",
	"incident response",
	"expense and procurement",
	"time off and scheduling",
	"documentation updates",
}

// defaultWorkflowInstruction is the fixed system instruction template; the
// category list is injected at construction time.
const defaultWorkflowInstruction = `You are a workflow assistant for a team chat workspace.
Available workflow categories: {{join ", " .categories}}.
Given the user's goal, respond with a ranked, numbered list of recommended workflow actions drawn from these categories, most relevant first, with one sentence of rationale each.
You only recommend actions. You never execute anything, and you must not claim to have done so.`

// WorkflowRecommendOptions configure the workflow-recommend executor.
type WorkflowRecommendOptions struct {
	// Categories replaces the default workflow category list.
	Categories []string
	// Instruction replaces the default system instruction template. It is
	// rendered once with {"categories": Categories}.
	Instruction string
	// Logger receives executor diagnostics.
	Logger logging.Logger
}

// WorkflowRecommend suggests workflow actions for a described goal. It never
// executes anything; recommendations are text only.
type WorkflowRecommend struct {
	client      *completion.Client
	instruction string
	logger      logging.Logger
}

// NewWorkflowRecommend constructs the executor, rendering the instruction
// template eagerly so a malformed template fails at startup, not per turn.
func NewWorkflowRecommend(client *completion.Client, optFns ...func(o *WorkflowRecommendOptions)) (*WorkflowRecommend, error) {
	opts := WorkflowRecommendOptions{
		Categories:  DefaultWorkflowCategories,
		Instruction: defaultWorkflowInstruction,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	instruction, err := util.RenderTemplate(opts.Instruction, map[string]any{"categories": opts.Categories})
	if err != nil {
		return nil, err
	}
	return &WorkflowRecommend{client: client, instruction: instruction, logger: opts.Logger}, nil
}

// Execute implements core.Executor.
func (e *WorkflowRecommend) Execute(ctx context.Context, turn core.InboundTurn, session *core.Session) core.OutboundReply {
	msgs := historyMessages(session)
	msgs = append(msgs, core.Message{Role: "user", Text: turn.Text})

	recommendation, err := e.client.Complete(ctx, completion.Prompt{
		System:   e.instruction,
		Messages: msgs,
	}, completion.Options{Tier: completion.TierDeep})
	if err != nil {
		return failureReply(e.logger, turn, err)
	}
	return reply(turn, recommendation)
}
