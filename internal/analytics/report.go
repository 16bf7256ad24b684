package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"txnstats/internal/core"
)

// Report is the answer to every query for one client name.
type Report struct {
	Client              string                `json:"client"`
	GeneratedAt         time.Time             `json:"generated_at"`
	Records             int                   `json:"records"`
	TotalAmount         float64               `json:"total_amount"`
	TotalSentByClient   float64               `json:"total_sent_by_client"`
	MaxAmount           float64               `json:"max_amount"`
	UniqueClients       int                   `json:"unique_clients"`
	ClientHasOpenIssues bool                  `json:"client_has_open_issues"`
	ByBeneficiary       Groups                `json:"by_beneficiary"`
	UnsolvedIssueIDs    []int64               `json:"unsolved_issue_ids"`
	SolvedIssueMessages []string              `json:"solved_issue_messages"`
	Top3                []core.Transaction    `json:"top3"`
	TopSender           core.Optional[string] `json:"top_sender"`
}

// BuildReport runs the queries concurrently against e. Every query only reads the
// engine's snapshot, so no locking is needed. The error is non-nil only when ctx is
// done before the report is complete.
func BuildReport(ctx context.Context, e *Engine, client string) (Report, error) {
	r := Report{Client: client, Records: e.Len()}

	g, ctx := errgroup.WithContext(ctx)
	run := func(query func()) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			query()
			return nil
		})
	}

	run(func() { r.TotalAmount = e.TotalTransactionAmount() })
	run(func() { r.TotalSentByClient = e.TotalTransactionAmountSentBy(client) })
	run(func() { r.MaxAmount = e.MaxTransactionAmount() })
	run(func() { r.UniqueClients = e.CountUniqueClients() })
	run(func() { r.ClientHasOpenIssues = e.HasOpenComplianceIssues(client) })
	run(func() { r.ByBeneficiary = e.TransactionsByBeneficiaryName() })
	run(func() { r.UnsolvedIssueIDs = e.UnsolvedIssueIDs() })
	run(func() { r.SolvedIssueMessages = e.AllSolvedIssueMessages() })
	run(func() { r.Top3 = e.Top3TransactionsByAmount() })
	run(func() {
		if name, ok := e.TopSender(); ok {
			r.TopSender = core.Some(name)
		}
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	r.GeneratedAt = time.Now().UTC()
	return r, nil
}
