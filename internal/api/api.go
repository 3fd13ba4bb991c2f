// Package api defines the JSON documents exchanged between the transaction
// service and its clients, and their conversion to and from core types.
package api

import (
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// DateLayout is used for rule dates, which carry no time of day.
const DateLayout = "2006-01-02"

// timestamp layouts accepted for transaction dates, most specific first
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

type Transaction struct {
	ID          string          `json:"id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Date        string          `json:"date,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags,omitempty"`
	Frequency   string          `json:"frequency,omitempty"`
	RecurringID string          `json:"recurring_id,omitempty"`
}

type TransactionList struct {
	Items []Transaction `json:"items"`
}

type BulkRequest struct {
	Transactions []Transaction `json:"transactions"`
}

type BulkFailure struct {
	Transaction Transaction `json:"transaction"`
	Error       string      `json:"error"`
	Duplicate   bool        `json:"duplicate,omitempty"`
}

type BulkResponse struct {
	Saved  int           `json:"saved"`
	Failed []BulkFailure `json:"failed"`
	Total  int           `json:"total"`
}

type Report struct {
	UserID  string          `json:"user_id"`
	Days    int             `json:"days"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
	Items   []Transaction   `json:"items"`
}

type ClassifyRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type Classification struct {
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	NeedsReview bool    `json:"needs_review"`
}

type ImportSummary struct {
	Total          int `json:"total"`
	AutoClassified int `json:"auto_classified"`
	NeedsReview    int `json:"needs_review"`
	Invalid        int `json:"invalid"`
}

// ImportRow is a previewed transaction. It embeds Transaction so a client can post
// the rows back to the bulk commit endpoint unchanged.
type ImportRow struct {
	Transaction
	Line        int     `json:"line"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	NeedsReview bool    `json:"needs_review"`
}

type RowError struct {
	Line  int    `json:"line"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

type ImportPreview struct {
	Summary      ImportSummary `json:"summary"`
	Transactions []ImportRow   `json:"transactions"`
	Errors       []RowError    `json:"errors"`
}

type Category struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type CategoryList struct {
	Items []Category `json:"items"`
}

type Rule struct {
	ID          string          `json:"id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags,omitempty"`
	Frequency   string          `json:"frequency"`
	StartDate   string          `json:"start_date,omitempty"`
	EndDate     string          `json:"end_date,omitempty"`
	NextDue     string          `json:"next_due,omitempty"`
	Active      bool            `json:"active"`
}

type RuleList struct {
	Items []Rule `json:"items"`
}

// ParseDate accepts RFC 3339, naive ISO timestamps (read as UTC) and plain dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FromTransaction renders tx for the wire. Dates are second precision UTC.
func FromTransaction(tx core.Transaction) Transaction {
	out := Transaction{
		ID:          tx.ID,
		UserID:      tx.Owner,
		Amount:      tx.Amount,
		Type:        string(tx.Type),
		Category:    tx.Category,
		Description: tx.Description,
		Tags:        tx.Tags,
		Frequency:   string(tx.Frequency),
		RecurringID: tx.RecurringID,
	}
	if !tx.Date.IsZero() {
		out.Date = tx.Date.UTC().Format(time.RFC3339)
	}
	return out
}

// FromTransactions converts a slice, never returning nil.
func FromTransactions(txs []core.Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, FromTransaction(tx))
	}
	return out
}

// ToCore converts t to a domain transaction. Malformed dates and frequencies are
// reported as validation errors; field level checks are left to core.Transaction.Validate.
func (t Transaction) ToCore() (core.Transaction, error) {
	tx := core.Transaction{
		ID:          strings.TrimSpace(t.ID),
		Owner:       t.UserID,
		Amount:      t.Amount,
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(t.Type))),
		Category:    t.Category,
		Description: t.Description,
		Tags:        core.CleanTags(t.Tags),
		RecurringID: t.RecurringID,
	}
	if strings.TrimSpace(t.Date) != "" {
		d, err := ParseDate(t.Date)
		if err != nil {
			return tx, core.NewValidationError("date", "unrecognized date "+t.Date)
		}
		tx.Date = d
	}
	freq, ok := core.ParseFrequency(t.Frequency)
	if !ok {
		return tx, core.NewValidationError("frequency", "unknown frequency "+t.Frequency)
	}
	tx.Frequency = freq
	return tx, nil
}

func FromBulkResult(res core.BulkResult) BulkResponse {
	out := BulkResponse{Saved: res.Saved, Total: res.Total, Failed: make([]BulkFailure, 0, len(res.Failed))}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, BulkFailure{
			Transaction: FromTransaction(f.Tx),
			Error:       f.Error,
			Duplicate:   f.Duplicate,
		})
	}
	return out
}

// ToCore converts the response back into a result. Failed transactions that do not
// convert cleanly keep whatever fields did.
func (b BulkResponse) ToCore() core.BulkResult {
	res := core.BulkResult{Saved: b.Saved, Total: b.Total}
	for _, f := range b.Failed {
		tx, _ := f.Transaction.ToCore()
		res.Failed = append(res.Failed, core.BulkFailure{Tx: tx, Error: f.Error, Duplicate: f.Duplicate})
	}
	return res
}

func FromReport(r core.Report) Report {
	return Report{
		UserID:  r.Owner,
		Days:    r.Days,
		Income:  r.Income,
		Expense: r.Expense,
		Net:     r.Net,
		Items:   FromTransactions(r.Items),
	}
}

func FromClassification(c core.ClassificationResult) Classification {
	return Classification{
		Category:    c.Category,
		Confidence:  c.Confidence,
		Reason:      c.Reason,
		NeedsReview: c.NeedsReview(),
	}
}

func FromCategories(cats []core.Category) CategoryList {
	out := CategoryList{Items: make([]Category, 0, len(cats))}
	for _, c := range cats {
		out.Items = append(out.Items, Category{Name: c.Name, Type: c.Type, Color: c.Color, Icon: c.Icon})
	}
	return out
}

func FromRule(r core.RecurringRule) Rule {
	out := Rule{
		ID:          r.ID,
		UserID:      r.Owner,
		Amount:      r.Amount,
		Type:        string(r.Type),
		Category:    r.Category,
		Description: r.Description,
		Tags:        r.Tags,
		Frequency:   string(r.Frequency),
		Active:      r.Active,
	}
	if !r.StartDate.IsZero() {
		out.StartDate = r.StartDate.Format(DateLayout)
	}
	if r.EndDate != nil {
		out.EndDate = r.EndDate.Format(DateLayout)
	}
	if !r.NextDue.IsZero() {
		out.NextDue = r.NextDue.Format(DateLayout)
	}
	return out
}

func FromRules(rules []core.RecurringRule) RuleList {
	out := RuleList{Items: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		out.Items = append(out.Items, FromRule(r))
	}
	return out
}

// ToCore converts a rule submission. NextDue is ignored; the service derives it.
func (r Rule) ToCore() (core.RecurringRule, error) {
	rule := core.RecurringRule{
		ID:          strings.TrimSpace(r.ID),
		Owner:       r.UserID,
		Amount:      r.Amount,
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(r.Type))),
		Category:    strings.TrimSpace(r.Category),
		Description: strings.TrimSpace(r.Description),
		Tags:        core.CleanTags(r.Tags),
	}
	freq, ok := core.ParseFrequency(r.Frequency)
	if !ok || !freq.Recurring() {
		return rule, core.NewValidationError("frequency", "frequency must be daily, weekly, monthly or yearly")
	}
	rule.Frequency = freq
	if r.StartDate != "" {
		d, err := ParseDate(r.StartDate)
		if err != nil {
			return rule, core.NewValidationError("start_date", "unrecognized date "+r.StartDate)
		}
		rule.StartDate = core.DateOnly(d)
	}
	if r.EndDate != "" {
		d, err := ParseDate(r.EndDate)
		if err != nil {
			return rule, core.NewValidationError("end_date", "unrecognized date "+r.EndDate)
		}
		end := core.DateOnly(d)
		rule.EndDate = &end
	}
	return rule, nil
}
