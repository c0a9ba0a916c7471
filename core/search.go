package core

import "context"

// SearchResult is one workspace message matched by a search query.
type SearchResult struct {
	Ref       string  // platform message reference (channel + ts)
	Channel   string  // human-readable channel name
	User      string  // author user id
	Text      string  // message text
	Score     float64 // relevance score as reported by the platform
	Permalink string  // stable link to the source message
}

// Searcher is the external search collaborator: a finite, ordered,
// non-restartable result set per call.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}
