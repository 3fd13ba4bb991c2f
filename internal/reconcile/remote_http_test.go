package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/api"
	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func TestHTTPRemoteFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" || r.URL.Query().Get("user_id") != "alice" || r.URL.Query().Get("limit") != "1000" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":"r1","user_id":"alice","date":"2024-03-01T09:00:00Z","amount":"-10.00","type":"expense","category":"Groceries","description":"Countdown"},
			{"id":"bad","user_id":"alice","date":"not a date","amount":"5","type":"income","category":"Salary"}
		]}`))
	}))
	defer srv.Close()

	txs, err := NewHTTPRemote(srv.URL+"/", "alice", srv.Client()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Fetch() returned %d records, want 1", len(txs))
	}
	if txs[0].ID != "r1" || !txs[0].Amount.Equal(decimal.NewFromInt(-10)) || txs[0].Type != core.Expense {
		t.Errorf("record = %+v", txs[0])
	}
}

func TestHTTPRemoteCommitBulk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transactions/commit-bulk" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		var req api.BulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		resp := api.BulkResponse{Saved: len(req.Transactions) - 1, Total: len(req.Transactions)}
		resp.Failed = []api.BulkFailure{{Transaction: req.Transactions[1], Error: "duplicate id", Duplicate: true}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	txs := []core.Transaction{
		remoteTx("local-1", "-4.50", "Coffee", 3),
		remoteTx("local-2", "-6", "Tea", 4),
	}
	res, err := NewHTTPRemote(srv.URL, "alice", nil).CommitBulk(context.Background(), txs)
	if err != nil {
		t.Fatalf("CommitBulk() error = %v", err)
	}
	if res.Saved != 1 || res.Total != 2 || len(res.Failed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if f := res.Failed[0]; f.Tx.ID != "local-2" || !f.Duplicate {
		t.Errorf("failure = %+v", f)
	}
}

func TestHTTPRemoteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, "alice", srv.Client())
	_, err := remote.Fetch(context.Background())
	var rerr *core.RemoteUnavailableError
	if !errors.As(err, &rerr) || rerr.Op != "fetch" {
		t.Fatalf("Fetch() error = %v, want remote unavailable", err)
	}
	if _, err := remote.CommitBulk(context.Background(), []core.Transaction{remoteTx("x", "-1", "x", 1)}); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Errorf("CommitBulk() error = %v", err)
	}
}
