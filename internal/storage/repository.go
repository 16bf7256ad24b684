// Package storage is the SQLite source of transaction records.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"txnstats/internal/core"
	"txnstats/internal/log"
	"txnstats/internal/sources"

	_ "modernc.org/sqlite"
)

var (
	_ sources.TransactionReader   = (*SQLiteRepository)(nil)
	_ sources.TransactionImporter = (*SQLiteRepository)(nil)
)

const (
	selectTransactions = `SELECT mtn, amount, sender_full_name, sender_age, beneficiary_full_name,
       beneficiary_age, issue_id, issue_solved, issue_message
FROM transactions
ORDER BY seq`

	insertTransaction = `INSERT INTO transactions (mtn, amount, sender_full_name, sender_age,
       beneficiary_full_name, beneficiary_age, issue_id, issue_solved, issue_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	countTransactions  = `SELECT COUNT(*) FROM transactions`
	deleteTransactions = `DELETE FROM transactions`
)

type SQLiteRepository struct {
	db            *sql.DB
	path          string
	schemaVersion uint
	logger        *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:            db,
		path:          dbPath,
		schemaVersion: version,
		logger:        logger.WithComponent(log.ComponentStorage),
	}
	repo.logger.Debug("SQLite repository ready", "path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) SchemaVersion() uint { return r.schemaVersion }

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ReadTransactions returns every stored record in insertion order.
func (r *SQLiteRepository) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransactions)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			t               core.Transaction
			sender, benef   sql.NullString
			issueID         sql.NullInt64
			issueMessage    sql.NullString
			senderAge, bAge int64
			solved          bool
		)
		if err := rows.Scan(&t.MTN, &t.Amount, &sender, &senderAge, &benef, &bAge,
			&issueID, &solved, &issueMessage); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.SenderFullName = fromNullString(sender)
		t.BeneficiaryFullName = fromNullString(benef)
		t.IssueMessage = fromNullString(issueMessage)
		if issueID.Valid {
			t.IssueID = core.Some(issueID.Int64)
		}
		t.SenderAge = int(senderAge)
		t.BeneficiaryAge = int(bAge)
		t.IssueSolved = solved
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// ImportTransactions inserts txns in order inside one SQL transaction. With
// replace set the table is emptied first. Nothing is written if any record
// fails validation.
func (r *SQLiteRepository) ImportTransactions(ctx context.Context, txns []core.Transaction, replace bool) (int, error) {
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("record %d (mtn %d): %w", i, t.MTN, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, deleteTransactions); err != nil {
			return 0, fmt.Errorf("clear transactions: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txns {
		if _, err := stmt.ExecContext(ctx,
			t.MTN,
			t.Amount,
			toNullString(t.SenderFullName),
			t.SenderAge,
			toNullString(t.BeneficiaryFullName),
			t.BeneficiaryAge,
			toNullInt64(t.IssueID),
			t.IssueSolved,
			toNullString(t.IssueMessage),
		); err != nil {
			return 0, fmt.Errorf("insert transaction mtn %d: %w", t.MTN, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}

	r.logger.InfoContext(ctx, "Transactions imported",
		log.FieldRecords, len(txns),
		"replace", replace)
	return len(txns), nil
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countTransactions).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func fromNullString(s sql.NullString) core.Optional[string] {
	if !s.Valid {
		return core.None[string]()
	}
	return core.Some(s.String)
}

func toNullString(o core.Optional[string]) sql.NullString {
	v, ok := o.Get()
	return sql.NullString{String: v, Valid: ok}
}

func toNullInt64(o core.Optional[int64]) sql.NullInt64 {
	v, ok := o.Get()
	return sql.NullInt64{Int64: v, Valid: ok}
}
