package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"txnstats/internal/core"
	"txnstats/internal/log"
	"txnstats/internal/sources"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ sources.TransactionReader = (*Client)(nil)

// Config selects the spreadsheet and the credentials used to read it.
// ServiceAccountJSON wins over ServiceAccountFile when both are set.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// fetchFunc returns the raw cell matrix for an A1 range.
type fetchFunc func(ctx context.Context, rng string) ([][]any, error)

type Client struct {
	spreadsheetID string
	sheetName     string
	fetch         fetchFunc
	logger        *log.Logger
}

// NewClient creates a Sheets reader authenticated with a service account.
func NewClient(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		cfg.SheetName = "Transactions"
	}

	logger = logger.WithComponent(log.ComponentSheets)
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	c := &Client{
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger,
	}
	c.fetch = func(ctx context.Context, rng string) ([][]any, error) {
		resp, err := svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).
			Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	}
	return c, nil
}

func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		raw, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.DebugContext(ctx, "Read service account credentials file",
			"path", cfg.ServiceAccountFile,
			"size", len(raw))
		credentialsJSON = raw
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadTransactions reads the whole sheet. The first row names the columns;
// rows that cannot be parsed are skipped and reported in one warning.
func (c *Client) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	if c.fetch == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	values, err := c.fetch(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	txns, skipped, err := parseTransactionRows(values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	if len(skipped) > 0 {
		c.logger.WarnContext(ctx, "Skipped unparseable sheet rows",
			log.FieldSource, rng,
			log.FieldSkipped, len(skipped),
			"first_error", skipped[0].Error())
	}
	c.logger.DebugContext(ctx, "Sheet rows parsed",
		log.FieldSource, rng,
		log.FieldRecords, len(txns))
	return txns, nil
}
