package memory

import (
	"context"
	"slices"
	"sync"

	"txnstats/internal/core"
	"txnstats/internal/sources"
)

var (
	_ sources.TransactionReader   = (*Store)(nil)
	_ sources.TransactionImporter = (*Store)(nil)
)

// Store keeps transactions in memory. Readers always get their own copy.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
}

func New(seed ...core.Transaction) *Store {
	return &Store{items: slices.Clone(seed)}
}

// Append stores the transaction after a structural check.
func (s *Store) Append(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return nil
}

func (s *Store) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items), nil
}

// ImportTransactions validates every record before storing any of them.
func (s *Store) ImportTransactions(_ context.Context, txns []core.Transaction, replace bool) (int, error) {
	for _, t := range txns {
		if err := t.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if replace {
		s.items = nil
	}
	s.items = append(s.items, txns...)
	return len(txns), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
