package federation

import (
	"fmt"
	"sync"

	"github.com/sylvanet/arbor/internal/apperr"
)

// DefaultFetchLimit bounds the remote fetches one inbound delivery may
// trigger when the configuration does not say otherwise.
const DefaultFetchLimit = 25

// Budget is the shared fetch counter for one resolution call tree. It is
// created per inbound delivery, threaded through every recursive
// dereference, and discarded when the tree completes. A single counter
// across the whole tree bounds total amplification no matter how deep or
// wide an attacker-built reference graph is.
type Budget struct {
	mu    sync.Mutex
	used  int
	limit int
}

// NewBudget returns a budget allowing up to limit fetches. A non-positive
// limit falls back to DefaultFetchLimit.
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return &Budget{limit: limit}
}

// Spend consumes one fetch. The ceiling check and the increment happen
// under one lock so concurrent leaf fetches cannot overshoot.
func (b *Budget) Spend() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return fmt.Errorf("federation: %d fetches spent: %w", b.used, apperr.ErrBudgetExhausted)
	}
	b.used++
	return nil
}

// Used returns how many fetches the tree has performed so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
