// Package worker answers report requests arriving over AMQP.
package worker

import (
	"context"
	"fmt"
	"time"

	"txnstats/internal/amqp"
	"txnstats/internal/analytics"
	"txnstats/internal/core"
	"txnstats/internal/log"
)

// DatasetLoader supplies the current dataset. It never fails; an unreadable
// source yields an empty collection.
type DatasetLoader interface {
	Load(ctx context.Context) []core.Transaction
	Invalidate()
	Source() string
}

// ReportPublisher delivers finished reports.
type ReportPublisher interface {
	PublishReport(ctx context.Context, msg *amqp.ReportMessage) error
}

type ReportWorker struct {
	loader        DatasetLoader
	publisher     ReportPublisher
	defaultClient string
	logger        *log.Logger
	now           func() time.Time
}

func NewReportWorker(loader DatasetLoader, publisher ReportPublisher, defaultClient string, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportWorker{
		loader:        loader,
		publisher:     publisher,
		defaultClient: defaultClient,
		logger:        logger.WithComponent(log.ComponentWorker),
		now:           time.Now,
	}
}

// BuildReport loads the dataset and runs every query for client, falling
// back to the default client when client is empty.
func (w *ReportWorker) BuildReport(ctx context.Context, client string) (analytics.Report, error) {
	if client == "" {
		client = w.defaultClient
	}

	engine := analytics.NewEngine(w.loader.Load(ctx))
	report, err := analytics.BuildReport(ctx, engine, client)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("build report: %w", err)
	}
	report.GeneratedAt = w.now().UTC()
	return report, nil
}

// HandleReportRequest builds the requested report and publishes it. A
// returned error makes the consumer requeue the request.
func (w *ReportWorker) HandleReportRequest(ctx context.Context, msg *amqp.ReportRequestMessage) error {
	start := w.now()
	w.logger.InfoContext(ctx, "Processing report request",
		log.FieldMessageID, msg.ID,
		log.FieldClient, msg.Client)

	report, err := w.BuildReport(ctx, msg.Client)
	if err != nil {
		return err
	}

	out := amqp.NewReportMessage(msg.ID, w.loader.Source(), report)
	if err := w.publisher.PublishReport(ctx, out); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	w.logger.InfoContext(ctx, "Report published",
		log.FieldMessageID, out.ID,
		"request_id", msg.ID,
		log.FieldClient, report.Client,
		log.FieldRecords, report.Records,
		log.FieldDuration, w.now().Sub(start).Milliseconds())
	return nil
}

// StartupCheck warms the dataset cache and logs its size.
func (w *ReportWorker) StartupCheck(ctx context.Context) int {
	n := len(w.loader.Load(ctx))
	if n == 0 {
		w.logger.WarnContext(ctx, "Dataset is empty at startup", log.FieldSource, w.loader.Source())
	} else {
		w.logger.InfoContext(ctx, "Dataset ready", log.FieldSource, w.loader.Source(), log.FieldRecords, n)
	}
	return n
}

// PeriodicRefresh drops the cached dataset every interval so the next
// request sees fresh data, until ctx is done.
func (w *ReportWorker) PeriodicRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.loader.Invalidate()
			w.StartupCheck(ctx)
		}
	}
}
