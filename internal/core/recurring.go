package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecurringRule is a template that materializes one transaction per frequency step.
type RecurringRule struct {
	ID          string
	Owner       string
	Amount      decimal.Decimal
	Type        TransactionType
	Category    string
	Description string
	Tags        []string
	Frequency   Frequency
	StartDate   time.Time
	EndDate     *time.Time
	NextDue     time.Time
	Active      bool
}

// NewRecurringRule builds an active rule whose first due date is one step after start.
func NewRecurringRule(owner string, amount decimal.Decimal, category, description string, freq Frequency, start time.Time, end *time.Time) RecurringRule {
	start = DateOnly(start)
	if end != nil {
		e := DateOnly(*end)
		end = &e
	}
	return RecurringRule{
		Owner:       owner,
		Amount:      amount,
		Type:        TypeForAmount(amount),
		Category:    category,
		Description: description,
		Frequency:   freq,
		StartDate:   start,
		EndDate:     end,
		NextDue:     start.Add(freq.Step()),
		Active:      true,
	}
}

func (r RecurringRule) Validate() error {
	if r.Amount.IsZero() {
		return NewValidationError("amount", "amount is required and must be non-zero")
	}
	if strings.TrimSpace(r.Category) == "" {
		return NewValidationError("category", "category is required")
	}
	if !r.Frequency.Recurring() {
		return NewValidationError("frequency", "frequency must be daily, weekly, monthly or yearly")
	}
	if r.StartDate.IsZero() {
		return NewValidationError("start_date", "start date is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return NewValidationError("end_date", "end date must not be before start date")
	}
	if r.NextDue.Before(r.StartDate) {
		return NewValidationError("next_due_date", "next due date must not be before start date")
	}
	if r.Type != TypeForAmount(r.Amount) {
		return NewValidationError("type", "type "+string(r.Type)+" disagrees with amount sign")
	}
	return nil
}

// IsDue reports whether the rule should materialize on the calendar day of now.
func (r RecurringRule) IsDue(now time.Time) bool {
	return r.Active && !DateOnly(r.NextDue).After(DateOnly(now))
}

// Advance moves NextDue forward one step. Once it passes EndDate the rule is
// deactivated for good. It reports whether the rule is still active.
func (r *RecurringRule) Advance() bool {
	r.NextDue = r.NextDue.Add(r.Frequency.Step())
	if r.EndDate != nil && r.NextDue.After(*r.EndDate) {
		r.Active = false
	}
	return r.Active
}

// Materialize builds the concrete transaction for the current due date.
func (r RecurringRule) Materialize() Transaction {
	return Transaction{
		Owner:       r.Owner,
		Date:        r.NextDue,
		Amount:      r.Amount,
		Type:        r.Type,
		Category:    r.Category,
		Description: r.Description,
		Tags:        append([]string(nil), r.Tags...),
		Frequency:   r.Frequency,
		RecurringID: r.ID,
	}
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
