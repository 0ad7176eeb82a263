package sheets

import (
	"context"

	"ledger/internal/core"
)

// TransactionMirror replaces a remote copy of the ledger with txs.
type TransactionMirror interface {
	Mirror(ctx context.Context, txs []core.Transaction) error
}
