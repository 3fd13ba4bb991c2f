package csvimport

import (
	"errors"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func TestParseStatement(t *testing.T) {
	data := "Date,Amount,Description,Category,Tags\n" +
		"2025-01-02,-45.20,PAK'NSAVE Wellington,,food;weekly\n" +
		"03/01/2025,5000,ACME salary,Salary,\n" +
		"\n" +
		"2025-01-04,abc,broken,,\n" +
		"2025-01-05,0,zero,,\n" +
		"yesterday,-1,bad date,,\n"

	res, err := NewParser("", nil).Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d (%+v)", len(res.Rows), res.Rows)
	}
	first := res.Rows[0]
	if first.Line != 2 || first.Tx.Type != core.Expense || !first.Tx.Amount.Equal(decimal.RequireFromString("-45.2")) {
		t.Fatalf("unexpected first row %+v", first)
	}
	if first.Tx.Category != "" || len(first.Tx.Tags) != 2 {
		t.Fatalf("unexpected category/tags: %+v", first.Tx)
	}
	second := res.Rows[1]
	if !second.Tx.Date.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("month-first layout should win over day-first, got %v", second.Tx.Date)
	}
	if second.Tx.Category != "Salary" || second.Tx.Type != core.Income {
		t.Fatalf("unexpected second row %+v", second.Tx)
	}

	if len(res.Errors) != 3 {
		t.Fatalf("expected 3 row errors, got %+v", res.Errors)
	}
	wantLines := []int{5, 6, 7}
	for i, rowErr := range res.Errors {
		if rowErr.Line != wantLines[i] {
			t.Fatalf("error %d line = %d, want %d", i, rowErr.Line, wantLines[i])
		}
		if !errors.Is(rowErr, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", rowErr)
		}
	}
}

func TestPrimaryLayoutWins(t *testing.T) {
	data := "date,amount\n02/01/2025,-3\n"
	res, err := NewParser("02/01/2006", nil).Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := res.Rows[0].Tx.Date; !got.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected day-first date, got %v", got)
	}
}

func TestDayFirstFallback(t *testing.T) {
	res, err := NewParser("", nil).Parse(strings.NewReader("date,amount\n25/12/2024,-3\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Tx.Date.Month() != time.December {
		t.Fatalf("expected 25 December, got %+v %+v", res.Rows, res.Errors)
	}
}

func TestMissingColumns(t *testing.T) {
	_, err := NewParser("", nil).Parse(strings.NewReader("description,amount\nfoo,1\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected missing column error, got %v", err)
	}
	if _, err := NewParser("", nil).Parse(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
