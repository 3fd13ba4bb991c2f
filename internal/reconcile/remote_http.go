package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
)

// FetchLimit is the number of records requested from the remote feed per cycle.
const FetchLimit = 1000

// HTTPRemote talks to the transaction service over its JSON API.
type HTTPRemote struct {
	baseURL string
	owner   string
	client  *http.Client
}

func NewHTTPRemote(baseURL, owner string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRemote{baseURL: strings.TrimRight(baseURL, "/"), owner: owner, client: client}
}

// Fetch returns the owner's remote records. Records that cannot be decoded are
// skipped.
func (h *HTTPRemote) Fetch(ctx context.Context) ([]core.Transaction, error) {
	q := url.Values{}
	q.Set("user_id", h.owner)
	q.Set("limit", strconv.Itoa(FetchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var list api.TransactionList
	if err := h.do(req, "fetch", &list); err != nil {
		return nil, err
	}

	out := make([]core.Transaction, 0, len(list.Items))
	for _, item := range list.Items {
		tx, err := item.ToCore()
		if err == nil {
			tx.Normalize()
			err = tx.Validate()
		}
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable remote record", "id", item.ID, "error", err)
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// CommitBulk uploads txs in one request.
func (h *HTTPRemote) CommitBulk(ctx context.Context, txs []core.Transaction) (core.BulkResult, error) {
	body, err := json.Marshal(api.BulkRequest{Transactions: api.FromTransactions(txs)})
	if err != nil {
		return core.BulkResult{}, fmt.Errorf("encode bulk request: %w", err)
	}
	q := url.Values{}
	q.Set("user_id", h.owner)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/transactions/commit-bulk?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return core.BulkResult{}, fmt.Errorf("build commit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp api.BulkResponse
	if err := h.do(req, "commit", &resp); err != nil {
		return core.BulkResult{}, err
	}
	return resp.ToCore(), nil
}

func (h *HTTPRemote) do(req *http.Request, op string, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return &core.RemoteUnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &core.RemoteUnavailableError{
			Op:  op,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.RemoteUnavailableError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
