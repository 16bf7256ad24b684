// Package jsonfile reads transactions from a JSON array file.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"txnstats/internal/core"
	"txnstats/internal/log"
	"txnstats/internal/sources"
)

var _ sources.TransactionReader = (*Reader)(nil)

// ErrNotArray is returned when the file holds valid JSON that is not an array.
var ErrNotArray = errors.New("transactions file must contain a JSON array")

type Reader struct {
	path   string
	logger *log.Logger
}

func New(path string, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reader{path: path, logger: logger.WithComponent(log.ComponentJSONFile)}
}

func (r *Reader) Path() string { return r.path }

// ReadTransactions parses the whole file. Unknown fields are ignored and
// absent or null name, issue id and message fields decode as absent.
func (r *Reader) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read transactions file: %w", err)
	}

	txns, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}

	r.logger.DebugContext(ctx, "Transactions file parsed",
		log.FieldSource, r.path,
		log.FieldRecords, len(txns))
	return txns, nil
}

// Decode parses a JSON array of transaction records. Records that fail
// core.Transaction.Validate reject the whole array.
func Decode(raw []byte) ([]core.Transaction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var txns []core.Transaction
	if err := json.Unmarshal(trimmed, &txns); err != nil {
		return nil, err
	}
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("record %d (mtn %d): %w", i, t.MTN, err)
		}
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	return txns, nil
}

// Encode renders transactions as an indented JSON array.
func Encode(txns []core.Transaction) ([]byte, error) {
	if txns == nil {
		txns = []core.Transaction{}
	}
	return json.MarshalIndent(txns, "", "  ")
}
