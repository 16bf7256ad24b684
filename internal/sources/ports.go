// Package sources declares the ports through which transaction records reach
// the loader. Each backend (JSON file, SQLite, Google Sheets, memory) satisfies
// TransactionReader.
package sources

import (
	"context"

	"txnstats/internal/core"
)

type (
	// TransactionReader returns the full collection in source order.
	TransactionReader interface {
		ReadTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// TransactionImporter stores records so a reader can serve them later.
	// When replace is true the existing records are discarded first.
	TransactionImporter interface {
		ImportTransactions(ctx context.Context, txns []core.Transaction, replace bool) (int, error)
	}
)

// ReaderFunc adapts a plain function to TransactionReader.
type ReaderFunc func(ctx context.Context) ([]core.Transaction, error)

func (f ReaderFunc) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	return f(ctx)
}
