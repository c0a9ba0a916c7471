package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

// ThreadSummarizeOptions configure the thread-summarize executor.
type ThreadSummarizeOptions struct {
	// ChunkSize is the number of thread messages summarized per chunk when
	// the thread exceeds the model's context budget.
	ChunkSize int
	// MaxModelCalls bounds completion calls for one turn, guarding against
	// runaway chunking on very long threads.
	MaxModelCalls int
	// Logger receives executor diagnostics.
	Logger logging.Logger
}

// ThreadSummarize consolidates a channel thread into a single summary using
// chunk-then-reduce: chunks are summarized independently, then the summaries
// are summarized in a second pass.
type ThreadSummarize struct {
	client        *completion.Client
	fetcher       core.ThreadFetcher
	chunkSize     int
	maxModelCalls int
	logger        logging.Logger
}

// NewThreadSummarize constructs the executor with optional overrides.
func NewThreadSummarize(client *completion.Client, fetcher core.ThreadFetcher, optFns ...func(o *ThreadSummarizeOptions)) *ThreadSummarize {
	opts := ThreadSummarizeOptions{
		ChunkSize:     10,
		MaxModelCalls: DefaultMaxModelCalls,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ThreadSummarize{
		client:        client,
		fetcher:       fetcher,
		chunkSize:     opts.ChunkSize,
		maxModelCalls: opts.MaxModelCalls,
		logger:        opts.Logger,
	}
}

// Execute implements core.Executor.
func (e *ThreadSummarize) Execute(ctx context.Context, turn core.InboundTurn, _ *core.Session) core.OutboundReply {
	if turn.Channel == "" || turn.ThreadTS == "" {
		return reply(turn, notFoundText)
	}

	msgs, err := e.fetcher.FetchThread(ctx, turn.Channel, turn.ThreadTS)
	if err != nil {
		return failureReply(e.logger, turn, err)
	}
	if len(msgs) == 0 {
		return reply(turn, "That thread has no messages to summarize.")
	}

	budget := completion.NewBudget(e.maxModelCalls)

	if len(msgs) <= e.chunkSize {
		summary, err := e.summarizeChunk(ctx, budget, transcript(msgs))
		if err != nil {
			return failureReply(e.logger, turn, err)
		}
		return reply(turn, summary)
	}

	chunkSummaries, err := e.summarizeChunks(ctx, budget, msgs)
	if err != nil {
		return failureReply(e.logger, turn, err)
	}

	consolidated, err := e.reduce(ctx, budget, chunkSummaries)
	if err != nil {
		return failureReply(e.logger, turn, err)
	}
	e.logger.Debug("thread summarized",
		"key", turn.ConversationKey,
		"messages", len(msgs),
		"chunks", len(chunkSummaries),
		"model_calls", budget.Count())
	return reply(turn, consolidated)
}

// summarizeChunks summarizes each fixed-size slice of the thread
// independently, preserving order.
func (e *ThreadSummarize) summarizeChunks(ctx context.Context, budget *completion.Budget, msgs []core.ThreadMessage) ([]string, error) {
	var summaries []string
	for start := 0; start < len(msgs); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		summary, err := e.summarizeChunk(ctx, budget, transcript(msgs[start:end]))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (e *ThreadSummarize) summarizeChunk(ctx context.Context, budget *completion.Budget, text string) (string, error) {
	if err := budget.Increment(); err != nil {
		return "", err
	}
	return e.client.Complete(ctx, completion.Prompt{
		System: "You are an intelligent assistant.",
		Messages: []core.Message{{
			Role: "user",
			Text: fmt.Sprintf("Summarize the following messages:\n%s", text),
		}},
	}, completion.Options{Tier: completion.TierDeep})
}

// reduce consolidates per-chunk summaries into one final summary.
func (e *ThreadSummarize) reduce(ctx context.Context, budget *completion.Budget, summaries []string) (string, error) {
	if err := budget.Increment(); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&b, "Part %d: %s\n", i+1, s)
	}
	return e.client.Complete(ctx, completion.Prompt{
		System: "You are an intelligent assistant.",
		Messages: []core.Message{{
			Role: "user",
			Text: fmt.Sprintf("These are partial summaries of one long discussion thread, in order. Consolidate them into a single coherent summary:\n%s", b.String()),
		}},
	}, completion.Options{Tier: completion.TierDeep})
}
