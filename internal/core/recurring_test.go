package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFrequencyStep(t *testing.T) {
	cases := map[Frequency]int{Daily: 1, Weekly: 7, Monthly: 30, Yearly: 365}
	for f, days := range cases {
		if got := f.Step(); got != time.Duration(days)*24*time.Hour {
			t.Fatalf("%s step = %v, want %d days", f, got, days)
		}
	}
}

func TestMonthlyRuleLifecycle(t *testing.T) {
	end := date(2024, 2, 15)
	rule := NewRecurringRule("u", decimal.NewFromInt(-20), "Entertainment", "Netflix", Monthly, date(2024, 1, 1), &end)
	if err := rule.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
	if !rule.NextDue.Equal(date(2024, 1, 31)) {
		t.Fatalf("first due = %v, want 2024-01-31", rule.NextDue)
	}
	if rule.IsDue(date(2024, 1, 30)) {
		t.Fatalf("rule must not be due before its next due date")
	}
	if !rule.IsDue(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("rule must be due on its due day")
	}

	tx := rule.Materialize()
	if !tx.Date.Equal(date(2024, 1, 31)) || tx.Frequency != Monthly || tx.Type != Expense {
		t.Fatalf("unexpected materialized transaction: %+v", tx)
	}

	if rule.Advance() {
		t.Fatalf("rule should deactivate once next due passes end date")
	}
	if !rule.NextDue.Equal(date(2024, 3, 1)) {
		t.Fatalf("next due = %v, want 2024-03-01", rule.NextDue)
	}
	if rule.IsDue(date(2024, 6, 1)) {
		t.Fatalf("inactive rule must never be due")
	}
}

func TestRuleValidate(t *testing.T) {
	end := date(2023, 12, 1)
	bad := NewRecurringRule("u", decimal.NewFromInt(10), "Salary", "pay", Monthly, date(2024, 1, 1), &end)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected end-before-start error")
	}
	oneOff := NewRecurringRule("u", decimal.NewFromInt(10), "Salary", "pay", OneOff, date(2024, 1, 1), nil)
	if err := oneOff.Validate(); err == nil {
		t.Fatalf("expected one-off frequency to be rejected")
	}
}
