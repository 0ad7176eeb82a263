package ledger

import (
	"strings"

	"ledger/internal/core"
)

// All disables the category or type criterion of a Filter.
const All = "all"

// Filter selects transactions. Empty fields match everything.
type Filter struct {
	Search   string // case-insensitive substring of the description
	Category string // exact category, or "all"
	Type     string // "income", "expense", or "all"

	// Uncategorized keeps only transactions without a category and takes
	// precedence over Category.
	Uncategorized bool
}

func (f Filter) Match(t core.Transaction) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	switch {
	case f.Uncategorized:
		if t.Category != "" {
			return false
		}
	case f.Category != "" && f.Category != All && t.Category != f.Category:
		return false
	}
	if f.Type != "" && f.Type != All && string(t.Type) != f.Type {
		return false
	}
	return true
}

// Apply returns the matching transactions in their original order.
func (f Filter) Apply(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
