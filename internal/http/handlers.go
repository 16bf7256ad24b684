package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"txnstats/internal/analytics"
	"txnstats/internal/core"
	"txnstats/internal/log"
)

// engine snapshots the current dataset for one request.
func (s *Server) engine(r *http.Request) *analytics.Engine {
	s.appMetrics.queries.Add(1)
	return analytics.NewEngine(s.dataset.Load(r.Context()))
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"total": s.engine(r).TotalTransactionAmount()})
}

func (s *Server) handleMax(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"max": s.engine(r).MaxTransactionAmount()})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Limit        int                `json:"limit"`
		Transactions []core.Transaction `json:"transactions"`
	}{
		Limit:        limit,
		Transactions: s.engine(r).TopTransactionsByAmount(limit),
	})
}

func (s *Server) handleByBeneficiary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]analytics.Groups{"groups": s.engine(r).TransactionsByBeneficiaryName()})
}

func (s *Server) handleUniqueClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.engine(r).CountUniqueClients()})
}

func (s *Server) handleTopSender(w http.ResponseWriter, r *http.Request) {
	var name core.Optional[string]
	if n, ok := s.engine(r).TopSender(); ok {
		name = core.Some(n)
	}
	writeJSON(w, http.StatusOK, map[string]core.Optional[string]{"name": name})
}

func (s *Server) handleSentBy(w http.ResponseWriter, r *http.Request) {
	name := clientName(r)
	writeJSON(w, http.StatusOK, struct {
		Client string  `json:"client"`
		Total  float64 `json:"total"`
	}{Client: name, Total: s.engine(r).TotalTransactionAmountSentBy(name)})
}

func (s *Server) handleOpenIssues(w http.ResponseWriter, r *http.Request) {
	name := clientName(r)
	writeJSON(w, http.StatusOK, struct {
		Client        string `json:"client"`
		HasOpenIssues bool   `json:"has_open_issues"`
	}{Client: name, HasOpenIssues: s.engine(r).HasOpenComplianceIssues(name)})
}

func (s *Server) handleUnsolvedIssues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]int64{"issue_ids": s.engine(r).UnsolvedIssueIDs()})
}

func (s *Server) handleSolvedMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"messages": s.engine(r).AllSolvedIssueMessages()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	client := r.URL.Query().Get("client")
	if client == "" {
		client = s.defaultClient
	}

	report, err := analytics.BuildReport(r.Context(), s.engine(r), client)
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Report aborted", err, log.OpReport,
			log.NewFields().WithClient(client))
		writeError(w, http.StatusServiceUnavailable, "report aborted")
		return
	}
	s.appMetrics.reports.Add(1)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.dataset.Invalidate()
	s.appMetrics.invalidations.Add(1)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Dataset cache invalidated",
		log.FieldSource, s.dataset.Source())
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "invalidated",
		"source": s.dataset.Source(),
	})
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady reports whether the source answers and how the dataset cache looks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.readyCheck == nil {
		checks["source"] = "ok"
	} else if err := s.readyCheck(ctx); err != nil {
		checks["source"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["source"] = "ok"
	}

	checks["dataset"] = map[string]any{
		"source": s.dataset.Source(),
		"cached": s.dataset.Cached(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}
