package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"txnstats/internal/core"
)

type fakeDataset struct {
	txns        []core.Transaction
	invalidated atomic.Int32
}

func (f *fakeDataset) Load(ctx context.Context) []core.Transaction { return f.txns }
func (f *fakeDataset) Invalidate() { f.invalidated.Add(1) }
func (f *fakeDataset) Source() string { return "memory" }
func (f *fakeDataset) Cached() bool { return true }

func sampleTransactions() []core.Transaction {
	return []core.Transaction{
		{MTN: 1, Amount: 100, SenderFullName: core.Some("Aunt Polly"), BeneficiaryFullName: core.Some("Tom Shelby"), IssueID: core.Some[int64](1)},
		{MTN: 1, Amount: 100, SenderFullName: core.Some("Aunt Polly"), BeneficiaryFullName: core.Some("Tom Shelby"), IssueID: core.Some[int64](1)},
		{MTN: 2, Amount: 50, SenderFullName: core.Some("Tom Shelby"), BeneficiaryFullName: core.Some("Aunt Polly"), IssueID: core.Some[int64](2), IssueSolved: true, IssueMessage: core.Some("Never gonna give you up")},
		{MTN: 3, Amount: 20, SenderFullName: core.Some("Aunt Polly")},
	}
}

func newTestServer(t *testing.T, txns []core.Transaction, opts Options) (*Server, *fakeDataset) {
	t.Helper()
	ds := &fakeDataset{txns: txns}
	srv := NewServer(":0", ds, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ds
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down, _ := newTestServer(t, nil, Options{
		ReadyCheck: func(ctx context.Context) error { return errors.New("database is locked") },
	})
	rr := do(t, down, http.MethodGet, "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
	if body := decode(t, rr); body["status"] != "not_ready" {
		t.Fatalf("readyz status field = %v", body["status"])
	}
}

func TestQueryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{})

	tests := []struct {
		path string
		key  string
		want any
	}{
		{"/api/transactions/total", "total", 170.0},
		{"/api/transactions/max", "max", 100.0},
		{"/api/clients/count", "count", 2.0},
		{"/api/clients/top-sender", "name", "Aunt Polly"},
		{"/api/clients/Aunt%20Polly/sent", "total", 120.0},
		{"/api/clients/Nobody/sent", "total", 0.0},
		{"/api/clients/Tom%20Shelby/open-issues", "has_open_issues", true},
		{"/api/clients/Nobody/open-issues", "has_open_issues", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tt.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if got := decode(t, rr)[tt.key]; got != tt.want {
				t.Fatalf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestClientNamesMatchExactly(t *testing.T) {
	srv, _ := newTestServer(t, []core.Transaction{
		{MTN: 1, Amount: 5, SenderFullName: core.Some("Bob")},
		{MTN: 2, Amount: 7, SenderFullName: core.Some(" Bob"), IssueID: core.Some[int64](9)},
	}, Options{DefaultClient: "Bob"})

	tests := []struct {
		path       string
		key        string
		wantClient string
		want       any
	}{
		{"/api/clients/Bob/sent", "total", "Bob", 5.0},
		{"/api/clients/%20Bob/sent", "total", " Bob", 7.0},
		{"/api/clients/bob/sent", "total", "bob", 0.0},
		{"/api/clients/Bob/open-issues", "has_open_issues", "Bob", false},
		{"/api/clients/%20Bob/open-issues", "has_open_issues", " Bob", true},
		{"/api/report?client=%20Bob", "total_sent_by_client", " Bob", 7.0},
		{"/api/report", "total_sent_by_client", "Bob", 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tt.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			body := decode(t, rr)
			if body["client"] != tt.wantClient {
				t.Fatalf("client = %q, want %q", body["client"], tt.wantClient)
			}
			if got := body[tt.key]; got != tt.want {
				t.Fatalf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestEmptyClientNameMatchesNothing(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{})

	rr := httptest.NewRecorder()
	srv.handleSentBy(rr, httptest.NewRequest(http.MethodGet, "/api/clients//sent", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("sent status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["total"]; got != 0.0 {
		t.Fatalf("total = %v, want 0", got)
	}

	rr = httptest.NewRecorder()
	srv.handleOpenIssues(rr, httptest.NewRequest(http.MethodGet, "/api/clients//open-issues", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("open-issues status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["has_open_issues"]; got != false {
		t.Fatalf("has_open_issues = %v, want false", got)
	}
}

func TestUnencodableResponseIsServerError(t *testing.T) {
	srv, _ := newTestServer(t, []core.Transaction{{MTN: 1, Amount: math.Inf(1)}}, Options{})

	rr := do(t, srv, http.MethodGet, "/api/transactions/total")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["error"]; got != "response encoding failed" {
		t.Fatalf("error = %v", got)
	}
}

func TestIssueAndGroupEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{})

	rr := do(t, srv, http.MethodGet, "/api/issues/unsolved")
	if got := strings.TrimSpace(rr.Body.String()); got != `{"issue_ids":[1]}` {
		t.Fatalf("unsolved body = %s", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/issues/solved-messages")
	if got := strings.TrimSpace(rr.Body.String()); got != `{"messages":["Never gonna give you up"]}` {
		t.Fatalf("solved messages body = %s", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/transactions/by-beneficiary")
	var grouped struct {
		Groups []struct {
			Beneficiary  *string            `json:"beneficiary"`
			Transactions []core.Transaction `json:"transactions"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &grouped); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if len(grouped.Groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(grouped.Groups))
	}
	if grouped.Groups[2].Beneficiary != nil {
		t.Fatalf("last group key = %v, want null", *grouped.Groups[2].Beneficiary)
	}
	if n := len(grouped.Groups[0].Transactions); n != 1 {
		t.Fatalf("duplicate MTN kept in group: %d records", n)
	}
}

func TestTopTransactions(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{})

	tests := []struct {
		query    string
		wantMTNs []int64
	}{
		{"", []int64{1, 2, 3}},
		{"?limit=2", []int64{1, 2}},
		{"?limit=0", []int64{}},
		{"?limit=10", []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/transactions/top"+tt.query)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			var body struct {
				Transactions []core.Transaction `json:"transactions"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Transactions) != len(tt.wantMTNs) {
				t.Fatalf("got %d records, want %d", len(body.Transactions), len(tt.wantMTNs))
			}
			for i, txn := range body.Transactions {
				if txn.MTN != tt.wantMTNs[i] {
					t.Fatalf("record %d mtn=%d, want %d", i, txn.MTN, tt.wantMTNs[i])
				}
			}
		})
	}
}

func TestTopTransactions_BadLimit(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{})

	for _, limit := range []string{"abc", "-1", "101", "2.5"} {
		rr := do(t, srv, http.MethodGet, "/api/transactions/top?limit="+limit)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s status=%d, want 400", limit, rr.Code)
		}
		if msg, _ := decode(t, rr)["error"].(string); !strings.Contains(msg, "limit") {
			t.Fatalf("limit=%s error = %q", limit, msg)
		}
	}
}

func TestEmptyDataset(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	tests := []struct {
		path string
		want string
	}{
		{"/api/transactions/total", `{"total":0}`},
		{"/api/transactions/max", `{"max":0}`},
		{"/api/transactions/top", `{"limit":3,"transactions":[]}`},
		{"/api/transactions/by-beneficiary", `{"groups":[]}`},
		{"/api/clients/count", `{"count":0}`},
		{"/api/clients/top-sender", `{"name":null}`},
		{"/api/issues/unsolved", `{"issue_ids":[]}`},
		{"/api/issues/solved-messages", `{"messages":[]}`},
	}

	for _, tt := range tests {
		rr := do(t, srv, http.MethodGet, tt.path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", tt.path, rr.Code)
		}
		if got := strings.TrimSpace(rr.Body.String()); got != tt.want {
			t.Fatalf("%s body = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestReport(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{DefaultClient: "Aunt Polly"})

	tests := []struct {
		path       string
		wantClient string
		wantSent   float64
	}{
		{"/api/report", "Aunt Polly", 120},
		{"/api/report?client=Tom%20Shelby", "Tom Shelby", 50},
	}

	for _, tt := range tests {
		rr := do(t, srv, http.MethodGet, tt.path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", tt.path, rr.Code)
		}
		body := decode(t, rr)
		if body["client"] != tt.wantClient {
			t.Fatalf("%s client = %v, want %s", tt.path, body["client"], tt.wantClient)
		}
		if body["total_sent_by_client"] != tt.wantSent {
			t.Fatalf("%s sent = %v, want %v", tt.path, body["total_sent_by_client"], tt.wantSent)
		}
		if body["top_sender"] != "Aunt Polly" {
			t.Fatalf("%s top sender = %v", tt.path, body["top_sender"])
		}
	}
}

func TestInvalidate(t *testing.T) {
	srv, ds := newTestServer(t, nil, Options{})

	if rr := do(t, srv, http.MethodGet, "/api/cache/invalidate"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d, want 405", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/cache/invalidate")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST status=%d", rr.Code)
	}
	if n := ds.invalidated.Load(); n != 1 {
		t.Fatalf("invalidated %d times, want 1", n)
	}
	if body := decode(t, rr); body["source"] != "memory" {
		t.Fatalf("source = %v", body["source"])
	}
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{RateLimitPerMinute: 1})

	if rr := do(t, srv, http.MethodGet, "/api/clients/count"); rr.Code != http.StatusOK {
		t.Fatalf("first request status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodGet, "/api/clients/count")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	if msg := decode(t, rr)["error"]; msg != "rate limit exceeded" {
		t.Fatalf("error = %v", msg)
	}
	if rr := do(t, srv, http.MethodGet, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz limited: status=%d", rr.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	rr := do(t, srv, http.MethodGet, "/api/transactions/total")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID missing")
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("Content-Type = %q", got)
	}

	if rr := do(t, srv, "TRACE", "/api/transactions/total"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("TRACE status=%d, want 405", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t, sampleTransactions(), Options{})

	do(t, srv, http.MethodGet, "/api/transactions/total")
	do(t, srv, http.MethodGet, "/api/report")

	body := do(t, srv, http.MethodGet, "/metrics").Body.String()
	for _, want := range []string{
		"txnstats_queries_total 2",
		"txnstats_reports_total 1",
		"txnstats_dataset_cached 1",
		"# TYPE http_requests_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestShutdownTwice(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
