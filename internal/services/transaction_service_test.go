package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestService(store *memStore, n *recordingNotifier) *TransactionService {
	return NewTransactionService(store, nil,
		WithNotifier(n),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()))
}

func TestSubmitDefaults(t *testing.T) {
	store := newMemStore()
	n := &recordingNotifier{}
	svc := newTestService(store, n)

	tx, err := svc.Submit(context.Background(), core.Transaction{
		Amount:   decimal.RequireFromString("-12.5"),
		Category: "Groceries",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tx.ID != "id-1" || tx.Owner != core.DefaultOwner || tx.Frequency != core.OneOff || tx.Type != core.Expense {
		t.Fatalf("unexpected defaults %+v", tx)
	}
	if !tx.Date.Equal(fixedNow) {
		t.Fatalf("expected date to default to now, got %v", tx.Date)
	}
	if len(store.txs) != 1 {
		t.Fatalf("expected one stored transaction")
	}
	if len(n.texts) != 1 || !strings.Contains(n.texts[0], "-$12.50") {
		t.Fatalf("expected a notification, got %v", n.texts)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		tx    core.Transaction
		field string
	}{
		{"missing amount", core.Transaction{Category: "x"}, "amount"},
		{"missing category", core.Transaction{Amount: decimal.NewFromInt(5)}, "category"},
		{"type disagrees with sign", core.Transaction{Amount: decimal.NewFromInt(5), Category: "x", Type: core.Expense}, "type"},
		{"unknown frequency", core.Transaction{Amount: decimal.NewFromInt(5), Category: "x", Frequency: "hourly"}, "frequency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store, &recordingNotifier{})
			_, err := svc.Submit(context.Background(), tt.tx)
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
			if !IsValidation(err) {
				t.Fatalf("IsValidation should report true")
			}
			if len(store.txs) != 0 {
				t.Fatalf("invalid transaction must not be stored")
			}
		})
	}
}

func TestSubmitStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failOn = func(core.Transaction) error { return errStoreDown }
	n := &recordingNotifier{}
	_, err := newTestService(store, n).Submit(context.Background(), core.Transaction{Amount: decimal.NewFromInt(1), Category: "x"})
	if !errors.Is(err, errStoreDown) || IsValidation(err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if len(n.texts) != 0 {
		t.Fatalf("failed submit must not notify")
	}
}

func TestSubmitNotifierFailureIsIgnored(t *testing.T) {
	n := &recordingNotifier{err: errors.New("telegram down")}
	if _, err := newTestService(newMemStore(), n).Submit(context.Background(), core.Transaction{Amount: decimal.NewFromInt(1), Category: "x"}); err != nil {
		t.Fatalf("notification failures must not fail submit: %v", err)
	}
}

func TestSubmitBulkPartial(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &recordingNotifier{})

	res := svc.SubmitBulk(context.Background(), []core.Transaction{
		{Amount: decimal.NewFromInt(-10), Category: "Groceries", Description: "one"},
		{Amount: decimal.NewFromInt(-5), Description: "two"},
		{Amount: decimal.NewFromInt(100), Category: "Salary", Description: "three"},
	})
	if res.Total != 3 || res.Saved != 2 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Failed[0].Tx.Description != "two" || !strings.Contains(res.Failed[0].Error, "category") {
		t.Fatalf("unexpected failure %+v", res.Failed[0])
	}
	if len(store.txs) != 2 {
		t.Fatalf("expected items 1 and 3 stored, got %d", len(store.txs))
	}
	if !errors.Is(res.Err(), core.ErrPartialCommit) {
		t.Fatalf("expected partial commit error")
	}
}

func TestSubmitBulkStoreError(t *testing.T) {
	store := newMemStore()
	store.failOn = func(tx core.Transaction) error {
		if tx.Description == "bad" {
			return errStoreDown
		}
		return nil
	}
	res := newTestService(store, &recordingNotifier{}).SubmitBulk(context.Background(), []core.Transaction{
		{Amount: decimal.NewFromInt(1), Category: "x", Description: "bad"},
		{Amount: decimal.NewFromInt(2), Category: "x", Description: "good"},
	})
	if res.Saved != 1 || len(res.Failed) != 1 || res.Failed[0].Tx.Description != "bad" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitBulkFlagsDuplicates(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &recordingNotifier{})
	tx := core.Transaction{ID: "local-1", Amount: decimal.NewFromInt(-3), Category: "Dining Out", Description: "coffee"}

	if res := svc.SubmitBulk(context.Background(), []core.Transaction{tx}); res.Saved != 1 {
		t.Fatalf("first commit %+v", res)
	}
	res := svc.SubmitBulk(context.Background(), []core.Transaction{tx})
	if res.Saved != 0 || len(res.Failed) != 1 || !res.Failed[0].Duplicate {
		t.Fatalf("expected duplicate failure, got %+v", res)
	}
	if res.Failed[0].Tx.ID != "local-1" {
		t.Errorf("failure lost the client id: %+v", res.Failed[0].Tx)
	}
}

func TestReport(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &recordingNotifier{})
	ctx := context.Background()
	for _, tx := range []core.Transaction{
		{Date: fixedNow.AddDate(0, 0, -1), Amount: decimal.RequireFromString("1000"), Category: "Salary"},
		{Date: fixedNow.AddDate(0, 0, -2), Amount: decimal.RequireFromString("-45.20"), Category: "Groceries"},
		{Date: fixedNow.AddDate(0, 0, -3), Amount: decimal.RequireFromString("-4.80"), Category: "Dining Out"},
		{Date: fixedNow.AddDate(0, 0, -30), Amount: decimal.RequireFromString("-999"), Category: "Old"},
	} {
		if _, err := svc.Submit(ctx, tx); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	rep, err := svc.Report(ctx, "", 7)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(rep.Items) != 3 {
		t.Fatalf("expected 3 items in window, got %d", len(rep.Items))
	}
	if !rep.Income.Equal(decimal.NewFromInt(1000)) || !rep.Expense.Equal(decimal.NewFromInt(-50)) || !rep.Net.Equal(decimal.NewFromInt(950)) {
		t.Fatalf("unexpected totals income=%s expense=%s net=%s", rep.Income, rep.Expense, rep.Net)
	}
	if got := FormatWeekly(rep); got != "Weekly: income=1000.00, expense=-50.00, net=950.00" {
		t.Fatalf("unexpected weekly text %q", got)
	}
}

func TestWeeklyReportNotifies(t *testing.T) {
	n := &recordingNotifier{}
	svc := newTestService(newMemStore(), n)
	if _, err := svc.WeeklyReport(context.Background(), "alice"); err != nil {
		t.Fatalf("WeeklyReport: %v", err)
	}
	if len(n.texts) != 1 || n.texts[0] != "Weekly: income=0.00, expense=0.00, net=0.00" {
		t.Fatalf("unexpected notifications %v", n.texts)
	}
}

func TestPreviewImport(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &recordingNotifier{})
	data := "date,amount,description,category\n" +
		"2025-01-02,-45.20,PAK'NSAVE Wellington,\n" +
		"2025-01-03,50,mystery credit,\n" +
		"2025-01-04,-9,unknown shop,\n" +
		"2025-01-05,-30,anything,Gifts\n" +
		"bad,-1,broken,\n"

	preview, err := svc.PreviewImport(context.Background(), "alice", strings.NewReader(data))
	if err != nil {
		t.Fatalf("PreviewImport: %v", err)
	}
	want := ImportSummary{Total: 4, AutoClassified: 2, NeedsReview: 1, Invalid: 1}
	if preview.Summary != want {
		t.Fatalf("summary = %+v, want %+v", preview.Summary, want)
	}
	if preview.Rows[0].Tx.Category != "Groceries" || preview.Rows[0].Tx.Owner != "alice" {
		t.Fatalf("unexpected first row %+v", preview.Rows[0])
	}
	if preview.Rows[1].Tx.Category != "Income" || preview.Rows[2].Tx.Category != "Uncategorized" {
		t.Fatalf("unexpected fallbacks %+v %+v", preview.Rows[1], preview.Rows[2])
	}
	if preview.Rows[3].Classification.Reason != "Provided" || preview.Rows[3].Tx.Category != "Gifts" {
		t.Fatalf("provided categories must be kept, got %+v", preview.Rows[3])
	}
	if len(store.txs) != 0 {
		t.Fatalf("preview must not persist")
	}

	if _, err := svc.PreviewImport(context.Background(), "", strings.NewReader("foo,bar\n")); !IsValidation(err) {
		t.Fatalf("expected validation error for unusable header, got %v", err)
	}
}

func TestCreateRule(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &recordingNotifier{})
	rule, err := svc.CreateRule(context.Background(), core.RecurringRule{
		Amount:    decimal.NewFromInt(-20),
		Category:  "Entertainment",
		Frequency: core.Weekly,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if !rule.NextDue.Equal(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)) || rule.Type != core.Expense || !rule.Active {
		t.Fatalf("unexpected rule %+v", rule)
	}
	rules, err := svc.ListRules(context.Background(), "")
	if err != nil || len(rules) != 1 {
		t.Fatalf("ListRules: %v %+v", err, rules)
	}

	if _, err := svc.CreateRule(context.Background(), core.RecurringRule{Amount: decimal.NewFromInt(1), Category: "x", Frequency: core.OneOff}); !IsValidation(err) {
		t.Fatalf("expected validation error for one-off rule, got %v", err)
	}
}
