package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

const noResultsText = "No results found. I couldn't find any relevant messages for that."

// SearchSummarizeOptions configure the search-summarize executor.
type SearchSummarizeOptions struct {
	// MaxResults bounds the search result set requested from the collaborator.
	MaxResults int
	// CiteLimit bounds how many results are summarized and cited.
	CiteLimit int
	// RefineQueries enables the fast-tier query refinement pass before search.
	RefineQueries bool
	// Logger receives executor diagnostics.
	Logger logging.Logger
}

// SearchSummarize answers information-seeking turns: refine the query, search
// workspace history, summarize the top results and cite their sources.
// Empty result sets short-circuit without any summarization call.
type SearchSummarize struct {
	client     *completion.Client
	searcher   core.Searcher
	maxResults int
	citeLimit  int
	refine     bool
	logger     logging.Logger
}

// NewSearchSummarize constructs the executor with optional overrides.
func NewSearchSummarize(client *completion.Client, searcher core.Searcher, optFns ...func(o *SearchSummarizeOptions)) *SearchSummarize {
	opts := SearchSummarizeOptions{
		MaxResults:    10,
		CiteLimit:     5,
		RefineQueries: true,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SearchSummarize{
		client:     client,
		searcher:   searcher,
		maxResults: opts.MaxResults,
		citeLimit:  opts.CiteLimit,
		refine:     opts.RefineQueries,
		logger:     opts.Logger,
	}
}

// Execute implements core.Executor.
func (e *SearchSummarize) Execute(ctx context.Context, turn core.InboundTurn, session *core.Session) core.OutboundReply {
	query := turn.Text
	if e.refine {
		query = e.refineQuery(ctx, turn.Text)
	}

	results, err := e.searcher.Search(ctx, query, e.maxResults)
	if err != nil {
		return failureReply(e.logger, turn, err)
	}
	if len(results) == 0 {
		e.logger.Debug("search returned no matches", "key", turn.ConversationKey, "query", query)
		return reply(turn, noResultsText)
	}

	if len(results) > e.citeLimit {
		results = results[:e.citeLimit]
	}

	summary, err := e.summarize(ctx, results, session)
	if err != nil {
		// The results are still useful; degrade to citations with an
		// explanatory lead-in rather than discarding them.
		e.logger.Warn("result summarization failed, replying with citations only",
			"key", turn.ConversationKey, "error", err)
		summary = "I found some relevant messages but couldn't generate a summary right now. Here are the details:"
	}

	return reply(turn, summary+"\n\n"+formatCitations(results))
}

// refineQuery asks the fast tier to turn the message into a search query,
// falling back to the original text when refinement fails, returns nothing,
// or adds over-restrictive author filters.
func (e *SearchSummarize) refineQuery(ctx context.Context, text string) string {
	refined, err := e.client.Complete(ctx, completion.Prompt{
		System: "You are an intelligent assistant. Simplify and optimize search queries for a team chat workspace.",
		Messages: []core.Message{{
			Role: "user",
			Text: fmt.Sprintf("Turn this message into a search query: %s. Only return the query itself. Do not include any commands or filters for the platform to execute.", text),
		}},
	}, completion.Options{Tier: completion.TierFast, MaxTokens: 128, Temperature: 0.2})
	if err != nil {
		e.logger.Warn("query refinement failed, using original query", "error", err)
		return text
	}
	refined = strings.TrimSpace(refined)
	if refined == "" || strings.Contains(refined, "from:@") {
		e.logger.Debug("refined query was over-restrictive, using original query", "refined", refined)
		return text
	}
	return refined
}

func (e *SearchSummarize) summarize(ctx context.Context, results []core.SearchResult, session *core.Session) (string, error) {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- Channel: #%s, User: <@%s>, Message: %s\n", r.Channel, r.User, strings.TrimSpace(r.Text))
	}

	msgs := historyMessages(session)
	msgs = append(msgs, core.Message{
		Role: "user",
		Text: fmt.Sprintf("Summarize these messages in 2-3 sentences:\n%s", b.String()),
	})

	return e.client.Complete(ctx, completion.Prompt{
		System:   "You are an assistant that summarizes team chat messages.",
		Messages: msgs,
	}, completion.Options{Tier: completion.TierDeep})
}

// formatCitations renders one citation block per result: channel, author,
// a single-line preview and the permalink.
func formatCitations(results []core.SearchResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		preview := strings.TrimSpace(strings.ReplaceAll(r.Text, "\n", " "))
		link := r.Permalink
		if link == "" {
			link = "#"
		}
		lines = append(lines, fmt.Sprintf("- In *#%s*, <@%s> posted:\n> %s\n<%s|View message>", r.Channel, r.User, preview, link))
	}
	return strings.Join(lines, "\n")
}
