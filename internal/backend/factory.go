package backend

import (
	"context"
	"errors"
	"fmt"
	"os"

	"txnstats/internal/log"
	"txnstats/internal/sources/google"
	"txnstats/internal/sources/jsonfile"
	"txnstats/internal/sources/memory"
	"txnstats/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case JSONBackend:
		return f.createJSONBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createJSONBackend(config Config) (*BackendResult, error) {
	reader := jsonfile.New(config.TransactionsFile, f.logger)
	f.logger.Info("Initialized JSON file backend", log.FieldSource, config.TransactionsFile)
	return &BackendResult{
		Reader: reader,
		Source: "json:" + config.TransactionsFile,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"schema_version", repo.SchemaVersion())

	return &BackendResult{
		Reader:  repo,
		Source:  "sqlite:" + config.SQLiteDBPath,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.NewClient(ctx, google.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)

	return &BackendResult{
		Reader: cli,
		Source: "sheets:" + config.GoogleSpreadsheetID + "/" + config.GoogleSheetName,
	}, nil
}

// createMemoryBackend seeds the store from the transactions file when it exists.
func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New()

	if config.TransactionsFile != "" {
		seed, err := jsonfile.New(config.TransactionsFile, f.logger).ReadTransactions(ctx)
		switch {
		case err == nil:
			if _, err := store.ImportTransactions(ctx, seed, true); err != nil {
				return nil, fmt.Errorf("seed memory backend: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			f.logger.Warn("Seed file not found, memory backend starts empty", log.FieldSource, config.TransactionsFile)
		default:
			return nil, fmt.Errorf("seed memory backend: %w", err)
		}
	}

	f.logger.Info("Initialized memory backend", log.FieldRecords, store.Len())

	return &BackendResult{
		Reader: store,
		Source: "memory",
	}, nil
}
