package services

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProcessDueMonthlyRuleEnds(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	n := &recordingNotifier{}
	end := day(2024, 2, 15)
	rule := core.NewRecurringRule("alice", decimal.NewFromInt(-20), "Entertainment", "Netflix", core.Monthly, day(2024, 1, 1), &end)
	rule.ID = "netflix"
	store.rules[rule.ID] = rule

	p := NewRecurringProcessor(store, n)

	res, err := p.ProcessDue(ctx, time.Date(2024, 1, 31, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if res.Processed != 1 || res.Deactivated != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	if len(store.txs) != 1 {
		t.Fatalf("expected one materialized transaction, got %d", len(store.txs))
	}
	tx := store.txs[0]
	if !tx.Date.Equal(day(2024, 1, 31)) || tx.RecurringID != "netflix" || tx.Frequency != core.Monthly || tx.Type != core.Expense {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	updated := store.rules["netflix"]
	if updated.Active || !updated.NextDue.Equal(day(2024, 3, 1)) {
		t.Fatalf("expected deactivated rule with next due 2024-03-01, got %+v", updated)
	}
	if len(n.texts) != 3 {
		t.Fatalf("expected materialized, ended and summary notifications, got %v", n.texts)
	}

	res, err = p.ProcessDue(ctx, day(2024, 6, 1))
	if err != nil || res.Processed != 0 || len(store.txs) != 1 {
		t.Fatalf("deactivated rule must not materialize again: %+v %v", res, err)
	}
}

func TestProcessDueCatchesUpOneStepPerPass(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rule := core.NewRecurringRule("bob", decimal.NewFromInt(5), "Salary", "allowance", core.Daily, day(2024, 1, 1), nil)
	rule.ID = "daily"
	store.rules[rule.ID] = rule

	p := NewRecurringProcessor(store, nil)
	now := day(2024, 1, 5)
	for pass := 1; pass <= 6; pass++ {
		if _, err := p.ProcessDue(ctx, now); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
	}
	// due on Jan 2, 3, 4 and 5; later passes find nothing due
	if len(store.txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(store.txs))
	}
	if got := store.rules["daily"].NextDue; !got.Equal(day(2024, 1, 6)) {
		t.Fatalf("next due = %v", got)
	}
}

func TestProcessDueInsertFailureRetries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rule := core.NewRecurringRule("bob", decimal.NewFromInt(-5), "Bills", "phone", core.Weekly, day(2024, 1, 1), nil)
	rule.ID = "phone"
	store.rules[rule.ID] = rule
	store.failOn = func(core.Transaction) error { return errStoreDown }

	p := NewRecurringProcessor(store, nil)
	res, err := p.ProcessDue(ctx, day(2024, 1, 8))
	if err != nil {
		t.Fatalf("per-rule failures must not fail the pass: %v", err)
	}
	if res.Failed != 1 || res.Processed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !store.rules["phone"].NextDue.Equal(day(2024, 1, 8)) {
		t.Fatalf("failed rule must not advance")
	}

	store.failOn = nil
	res, _ = p.ProcessDue(ctx, day(2024, 1, 8))
	if res.Processed != 1 {
		t.Fatalf("rule should be retried on the next pass, got %+v", res)
	}
}

func TestProcessDueUpdateFailureDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rule := core.NewRecurringRule("bob", decimal.NewFromInt(-5), "Bills", "phone", core.Weekly, day(2024, 1, 1), nil)
	rule.ID = "phone"
	store.rules[rule.ID] = rule
	store.updateErr = errStoreDown
	n := &recordingNotifier{}

	p := NewRecurringProcessor(store, n)
	res, err := p.ProcessDue(ctx, day(2024, 1, 8))
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if res.Failed != 1 || res.Processed != 0 || len(store.txs) != 1 {
		t.Fatalf("unexpected result %+v with %d transactions", res, len(store.txs))
	}

	store.updateErr = nil
	res, err = p.ProcessDue(ctx, day(2024, 1, 8))
	if err != nil || res.Failed != 0 {
		t.Fatalf("retry: %+v %v", res, err)
	}
	if len(store.txs) != 1 {
		t.Fatalf("retry must not insert the same occurrence again, got %d transactions", len(store.txs))
	}
	if got := store.rules["phone"].NextDue; !got.Equal(day(2024, 1, 15)) {
		t.Fatalf("next due = %v, want 2024-01-15", got)
	}
	if len(n.texts) != 0 {
		t.Fatalf("no notification expected before the rule advanced cleanly, got %v", n.texts)
	}
}

func TestOccurrenceIDIsStable(t *testing.T) {
	rule := core.NewRecurringRule("bob", decimal.NewFromInt(-5), "Bills", "phone", core.Weekly, day(2024, 1, 1), nil)
	rule.ID = "phone"
	first := occurrenceID(rule)
	if first != occurrenceID(rule) {
		t.Fatal("same rule and due date must give the same ID")
	}
	rule.Advance()
	if occurrenceID(rule) == first {
		t.Fatal("next occurrence must get a new ID")
	}
}

func TestProcessDueNotDueYet(t *testing.T) {
	store := newMemStore()
	rule := core.NewRecurringRule("bob", decimal.NewFromInt(-5), "Bills", "rent", core.Monthly, day(2024, 1, 1), nil)
	rule.ID = "rent"
	store.rules[rule.ID] = rule
	n := &recordingNotifier{}

	res, err := NewRecurringProcessor(store, n).ProcessDue(context.Background(), day(2024, 1, 30))
	if err != nil || res.Processed != 0 || len(n.texts) != 0 {
		t.Fatalf("nothing should be processed before due date: %+v %v %v", res, err, n.texts)
	}
}
