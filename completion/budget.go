package completion

import (
	"fmt"
	"sync"

	"github.com/haystackbot/haystack/core"
)

// Budget enforces a maximum number of allowed model calls for one turn's
// processing, guarding against runaway chunking or classification loops.
type Budget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewBudget creates a new budget with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Increment increases the call counter and returns an error if the limit is
// exceeded. The error wraps core.ErrInvalidRequest: exceeding the budget is a
// configuration defect, not an upstream condition, and is never retried.
func (b *Budget) Increment() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.max > 0 && b.count > b.max {
		return fmt.Errorf("%w: exceeded max model calls: %d", core.ErrInvalidRequest, b.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (b *Budget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many calls are left before hitting the limit.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1 // unlimited
	}

	return b.max - b.count
}
