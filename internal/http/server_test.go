package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard})
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := services.NewTransactionService(repo, nil, services.WithClock(func() time.Time { return testNow }))
	srv := NewServer(":0", svc, append([]ServerOption{WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/categories", nil, "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	req.Header.Set("X-Request-ID", "client-42")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "client-42" {
		t.Errorf("client request id not echoed: %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/transactions",
		strings.NewReader(`{"user_id":"alice","amount":-12.50,"category":"Groceries","description":"Countdown","date":"2024-03-09T08:00:00Z"}`),
		"application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created createResponse
	decode(t, rr, &created)
	if created.Transaction.ID == "" || created.Transaction.Type != "expense" {
		t.Fatalf("unexpected created transaction %+v", created.Transaction)
	}
	if !strings.Contains(created.Message, "-$12.50") {
		t.Errorf("message = %q", created.Message)
	}

	rr = do(t, srv, http.MethodGet, "/transactions?user_id=alice&limit=10", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	var list api.TransactionList
	decode(t, rr, &list)
	if len(list.Items) != 1 || list.Items[0].Description != "Countdown" {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = do(t, srv, http.MethodGet, "/transactions?user_id=bob", nil, "")
	decode(t, rr, &list)
	if len(list.Items) != 0 {
		t.Errorf("bob should see no transactions, got %d", len(list.Items))
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name  string
		body  string
		code  int
		field string
	}{
		{"missing amount", `{"category":"Groceries"}`, http.StatusUnprocessableEntity, "amount"},
		{"missing category", `{"amount":5}`, http.StatusUnprocessableEntity, "category"},
		{"sign mismatch", `{"amount":-5,"type":"income","category":"Salary"}`, http.StatusUnprocessableEntity, "type"},
		{"bad date", `{"amount":5,"category":"Salary","date":"soon"}`, http.StatusUnprocessableEntity, "date"},
		{"not json", `amount=5`, http.StatusBadRequest, ""},
		{"empty", ``, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/transactions", strings.NewReader(tt.body), "application/json")
			if rr.Code != tt.code {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.code, rr.Body.String())
			}
			var body errorBody
			decode(t, rr, &body)
			if body.Field != tt.field {
				t.Errorf("field = %q, want %q", body.Field, tt.field)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		method, path, allow string
	}{
		{http.MethodDelete, "/transactions", "GET, POST"},
		{http.MethodGet, "/transactions/commit-bulk", "POST"},
		{http.MethodPost, "/report", "GET"},
		{http.MethodGet, "/classify", "POST"},
		{http.MethodGet, "/import-csv-smart", "POST"},
		{http.MethodPut, "/recurring", "GET, POST"},
	}
	for _, tt := range tests {
		rr := do(t, srv, tt.method, tt.path, nil, "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status=%d", tt.method, tt.path, rr.Code)
		}
		if rr.Header().Get("Allow") != tt.allow {
			t.Errorf("%s %s Allow=%q, want %q", tt.method, tt.path, rr.Header().Get("Allow"), tt.allow)
		}
	}
}

func TestCommitBulkPartial(t *testing.T) {
	srv := newTestServer(t)
	body := `{"transactions":[
		{"id":"a","amount":-10,"category":"Groceries","description":"one","date":"2024-03-01"},
		{"id":"b","amount":-5,"description":"two","date":"2024-03-02"},
		{"id":"c","amount":100,"category":"Salary","description":"three","date":"2024-03-03"},
		{"id":"d","amount":1,"category":"x","frequency":"hourly"}
	]}`
	rr := do(t, srv, http.MethodPost, "/transactions/commit-bulk", strings.NewReader(body), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var res api.BulkResponse
	decode(t, rr, &res)
	if res.Saved != 2 || res.Total != 4 || len(res.Failed) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	failedIDs := map[string]bool{}
	for _, f := range res.Failed {
		failedIDs[f.Transaction.ID] = true
	}
	if !failedIDs["b"] || !failedIDs["d"] {
		t.Errorf("failed ids = %v", failedIDs)
	}

	rr = do(t, srv, http.MethodPost, "/transactions/commit-bulk",
		strings.NewReader(`[{"id":"a","amount":-10,"category":"Groceries","description":"one","date":"2024-03-01"}]`),
		"application/json")
	decode(t, rr, &res)
	if res.Saved != 0 || len(res.Failed) != 1 || !res.Failed[0].Duplicate {
		t.Fatalf("expected duplicate failure for resent id, got %+v", res)
	}
}

func TestReport(t *testing.T) {
	srv := newTestServer(t)
	for _, body := range []string{
		`{"amount":100,"category":"Salary","date":"2024-03-08T00:00:00Z"}`,
		`{"amount":-30,"category":"Groceries","date":"2024-03-09T00:00:00Z"}`,
		`{"amount":-999,"category":"Rent","date":"2024-01-01T00:00:00Z"}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/transactions", strings.NewReader(body), "application/json"); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d", rr.Code)
		}
	}

	rr := do(t, srv, http.MethodGet, "/report?days=7", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var rep api.Report
	decode(t, rr, &rep)
	if rep.UserID != core.DefaultOwner || rep.Days != 7 || len(rep.Items) != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if !rep.Income.Equal(decimal.NewFromInt(100)) || !rep.Expense.Equal(decimal.NewFromInt(-30)) || !rep.Net.Equal(decimal.NewFromInt(70)) {
		t.Errorf("totals income=%s expense=%s net=%s", rep.Income, rep.Expense, rep.Net)
	}

	rr = do(t, srv, http.MethodGet, "/report?days=-1", nil, "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative days status=%d", rr.Code)
	}
}

func TestClassify(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/classify",
		strings.NewReader(`{"description":"COUNTDOWN AUCKLAND","amount":"-45.20"}`), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got api.Classification
	decode(t, rr, &got)
	if got.Category != "Groceries" || got.Confidence != 0.9 || got.NeedsReview {
		t.Errorf("unexpected classification %+v", got)
	}
}

const statement = "Date,Amount,Description,Category\n" +
	"2024-03-01,-45.20,COUNTDOWN AUCKLAND,\n" +
	"2024-03-02,2500.00,ACME PAYROLL,\n" +
	"2024-03-03,-9.99,MYSTERY SHOP,\n" +
	"not-a-date,-1.00,BROKEN,\n"

func TestImportCSVSmartMultipart(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("user_id", "alice")
	fw, err := mw.CreateFormFile("file", "statement.csv")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(fw, statement)
	_ = mw.Close()

	rr := do(t, srv, http.MethodPost, "/import-csv-smart", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var preview api.ImportPreview
	decode(t, rr, &preview)

	want := api.ImportSummary{Total: 3, AutoClassified: 2, NeedsReview: 1, Invalid: 1}
	if preview.Summary != want {
		t.Fatalf("summary = %+v, want %+v", preview.Summary, want)
	}
	if preview.Transactions[0].UserID != "alice" || preview.Transactions[0].Category != "Groceries" {
		t.Errorf("first row = %+v", preview.Transactions[0])
	}
	if preview.Errors[0].Line != 5 || preview.Errors[0].Field != "date" {
		t.Errorf("row error = %+v", preview.Errors[0])
	}

	// nothing is persisted by a preview
	rr = do(t, srv, http.MethodGet, "/transactions?user_id=alice", nil, "")
	var list api.TransactionList
	decode(t, rr, &list)
	if len(list.Items) != 0 {
		t.Errorf("preview stored %d transactions", len(list.Items))
	}

	// previewed rows commit as-is
	commit, _ := json.Marshal(map[string]any{"transactions": preview.Transactions})
	rr = do(t, srv, http.MethodPost, "/transactions/commit-bulk", bytes.NewReader(commit), "application/json")
	var res api.BulkResponse
	decode(t, rr, &res)
	if res.Saved != 3 {
		t.Errorf("commit of preview saved %d, want 3: %+v", res.Saved, res.Failed)
	}
}

func TestImportCSVSmartRawBody(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/import-csv-smart?user_id=bob", strings.NewReader(statement), "text/csv")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/import-csv-smart", strings.NewReader("amount,description\n-1,x\n"), "text/csv")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing date column status=%d", rr.Code)
	}
	var body errorBody
	decode(t, rr, &body)
	if body.Field != "file" {
		t.Errorf("field = %q", body.Field)
	}
}

func TestImportCSVSmartMissingFile(t *testing.T) {
	srv := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("user_id", "alice")
	_ = mw.Close()

	rr := do(t, srv, http.MethodPost, "/import-csv-smart", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	srv := newTestServer(t)
	big := `{"description":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rr := do(t, srv, http.MethodPost, "/transactions", strings.NewReader(big), "application/json")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestCategoriesAndRecurring(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/categories", nil, "")
	var cats api.CategoryList
	decode(t, rr, &cats)
	if len(cats.Items) == 0 {
		t.Fatal("expected seeded categories")
	}

	rr = do(t, srv, http.MethodPost, "/recurring",
		strings.NewReader(`{"user_id":"alice","amount":-20,"category":"Entertainment","description":"Netflix","frequency":"monthly","start_date":"2024-01-01"}`),
		"application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create rule status=%d body=%s", rr.Code, rr.Body.String())
	}
	var rule api.Rule
	decode(t, rr, &rule)
	if rule.NextDue != "2024-01-31" || !rule.Active || rule.Type != "expense" {
		t.Fatalf("unexpected rule %+v", rule)
	}

	rr = do(t, srv, http.MethodPost, "/recurring",
		strings.NewReader(`{"amount":-20,"category":"Entertainment","frequency":"one-off"}`), "application/json")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("one-off rule status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/recurring?user_id=alice", nil, "")
	var rules api.RuleList
	decode(t, rr, &rules)
	if len(rules.Items) != 1 || rules.Items[0].Description != "Netflix" {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestRateLimitPOST(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(2))
	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodPost, "/classify", strings.NewReader(`{"description":"x","amount":1}`), "application/json")
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/classify", strings.NewReader(`{"description":"x","amount":1}`), "application/json")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("status=%d", rr.Code)
	}
	// reads are not limited
	if rr := do(t, srv, http.MethodGet, "/categories", nil, ""); rr.Code != http.StatusOK {
		t.Errorf("GET after limit status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/metrics", nil, "")
	if !strings.Contains(rr.Body.String(), "rate_limit_hits_total 1") {
		t.Errorf("metrics missing rate limit hit:\n%s", rr.Body.String())
	}
}

// failingAPI satisfies TransactionAPI with a storage that is down.
type failingAPI struct{ *services.TransactionService }

var errDown = errors.New("database is locked")

func (failingAPI) List(context.Context, string, int) ([]core.Transaction, error) { return nil, errDown }
func (failingAPI) Ready(context.Context) error                                   { return errDown }
func (failingAPI) Categories(context.Context) ([]core.Category, error)           { return nil, errDown }

func TestStorageFailures(t *testing.T) {
	srv := NewServer(":0", failingAPI{}, WithLogger(quietLogger()))
	defer srv.rateLimiter.stop()

	if rr := do(t, srv, http.MethodGet, "/transactions", nil, ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("list status=%d", rr.Code)
	} else if strings.Contains(rr.Body.String(), "locked") {
		t.Errorf("internal error leaked: %s", rr.Body.String())
	}
	if rr := do(t, srv, http.MethodGet, "/categories", nil, ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("categories status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/readyz", nil, ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status=%d", rr.Code)
	}
}
