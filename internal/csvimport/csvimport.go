// Package csvimport reads bank statement exports into unvalidated transactions.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"fintrack/internal/core"
)

// Columns recognised in the header row. Only date and amount are required.
const (
	ColDate        = "date"
	ColAmount      = "amount"
	ColDescription = "description"
	ColCategory    = "category"
	ColTags        = "tags"
)

var fallbackLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
}

var ErrMissingColumn = errors.New("missing required column")

// Row is a parsed line. Category may be empty when the export carries none.
type Row struct {
	Line int
	Tx   core.Transaction
}

// RowError reports a line that could not be turned into a transaction.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type Result struct {
	Rows   []Row
	Errors []RowError
}

// Parser is stateless; one value may be shared.
type Parser struct {
	layouts  []string
	location *time.Location
}

// NewParser tries layout first, then the fallback layouts. An empty layout means the
// fallbacks only. Dates without a zone are read in loc, or UTC when loc is nil.
func NewParser(layout string, loc *time.Location) *Parser {
	layouts := make([]string, 0, len(fallbackLayouts)+1)
	if layout = strings.TrimSpace(layout); layout != "" {
		layouts = append(layouts, layout)
	}
	for _, l := range fallbackLayouts {
		if l != layout {
			layouts = append(layouts, l)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{layouts: layouts, location: loc}
}

// Parse fails only when the header is unusable or the stream is not CSV. Bad data rows
// are collected in Result.Errors and never stop the import.
func (p *Parser) Parse(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, fmt.Errorf("read header: empty file")
		}
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := cols[h]; !seen {
			cols[h] = i
		}
	}
	for _, required := range []string{ColDate, ColAmount} {
		if _, ok := cols[required]; !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var res Result
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Errors = append(res.Errors, RowError{Line: perr.StartLine, Err: err})
				continue
			}
			return res, fmt.Errorf("read rows: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		tx, err := p.row(record, cols)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err})
			continue
		}
		res.Rows = append(res.Rows, Row{Line: line, Tx: tx})
	}
	return res, nil
}

func (p *Parser) row(record []string, cols map[string]int) (core.Transaction, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := p.parseDate(field(ColDate))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(field(ColAmount))
	if err != nil {
		return core.Transaction{}, core.NewValidationError("amount", fmt.Sprintf("invalid amount %q", field(ColAmount)))
	}
	if amount.IsZero() {
		return core.Transaction{}, core.NewValidationError("amount", "amount must be non-zero")
	}
	return core.Transaction{
		Date:        date,
		Amount:      amount,
		Type:        core.TypeForAmount(amount),
		Description: field(ColDescription),
		Category:    field(ColCategory),
		Tags:        core.SplitTags(field(ColTags)),
		Frequency:   core.OneOff,
	}, nil
}

func (p *Parser) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, core.NewValidationError("date", "date is required")
	}
	for _, layout := range p.layouts {
		if t, err := time.ParseInLocation(layout, s, p.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.NewValidationError("date", fmt.Sprintf("unrecognised date %q", s))
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
