package main

import (
	"context"
	"flag"
	"os"
	"time"

	"txnstats/internal/cli"
	"txnstats/internal/log"
	"txnstats/internal/sources/jsonfile"
	"txnstats/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	file := flag.String("file", cfg.TransactionsFile, "JSON transactions file to import")
	dbPath := flag.String("db", cfg.SQLiteDBPath, "SQLite database to import into")
	replace := flag.Bool("replace", false, "delete existing records before importing")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	txns, err := jsonfile.New(*file, logger).ReadTransactions(ctx)
	if err != nil {
		logger.Error("Failed to read transactions", log.FieldError, err, "file", *file)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(*dbPath, logger)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", *dbPath)
		os.Exit(1)
	}
	defer repo.Close()

	n, err := repo.ImportTransactions(ctx, txns, *replace)
	if err != nil {
		logger.LogError(ctx, "Import failed", err, log.OpImport,
			log.NewFields().WithSource("json:"+*file, len(txns)))
		os.Exit(1)
	}

	total, err := repo.CountTransactions(ctx)
	if err != nil {
		logger.Warn("Failed to count transactions", log.FieldError, err)
	}
	logger.Info("Import complete",
		log.FieldRecords, n,
		"total", total,
		"replace", *replace,
		"schema_version", repo.SchemaVersion())
}
