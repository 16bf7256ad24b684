package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"txnstats/internal/analytics"
	"txnstats/internal/cli"
	"txnstats/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	client := flag.String("client", cfg.ReportClient, "client name used by the per-client queries")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	dataset := cli.InitLoader(logger, cfg, result)
	report, err := analytics.BuildReport(ctx, analytics.NewEngine(dataset.Load(ctx)), *client)
	if err != nil {
		logger.Error("Failed to build report", log.FieldError, err, log.FieldClient, *client)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("Failed to encode report", log.FieldError, err)
			os.Exit(1)
		}
		return
	}
	printReport(os.Stdout, report)
}

// printReport writes one line per query.
func printReport(w io.Writer, r analytics.Report) {
	fmt.Fprintf(w, "Total Transaction Amount: %.2f\n", r.TotalAmount)
	fmt.Fprintf(w, "Total Amount Sent by %s: %.2f\n", r.Client, r.TotalSentByClient)
	fmt.Fprintf(w, "Highest Transaction Amount: %.2f\n", r.MaxAmount)
	fmt.Fprintf(w, "Count Unique Clients: %d\n", r.UniqueClients)
	fmt.Fprintf(w, "Has Open Compliance Issues for %s: %t\n", r.Client, r.ClientHasOpenIssues)

	fmt.Fprintln(w, "Transactions Indexed by Beneficiary Name:")
	for _, g := range r.ByBeneficiary {
		fmt.Fprintf(w, "  %s:\n", g.Beneficiary.OrElse("N/A"))
		for _, t := range g.Transactions {
			fmt.Fprintf(w, "    %s\n", t)
		}
	}

	ids := make([]string, len(r.UnsolvedIssueIDs))
	for i, id := range r.UnsolvedIssueIDs {
		ids[i] = fmt.Sprint(id)
	}
	fmt.Fprintf(w, "Unsolved Compliance Issue IDs: [%s]\n", strings.Join(ids, ", "))
	fmt.Fprintf(w, "Solved Issue Messages: [%s]\n", strings.Join(r.SolvedIssueMessages, ", "))

	fmt.Fprintln(w, "Top 3 Transactions by Amount:")
	for _, t := range r.Top3 {
		fmt.Fprintf(w, "  %s\n", t)
	}
	fmt.Fprintf(w, "Top Sender: %s\n", r.TopSender.OrElse("No top sender found"))
}
