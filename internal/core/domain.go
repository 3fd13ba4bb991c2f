package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	OneOff  Frequency = "one-off"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// DefaultOwner is used when a client does not name one.
const DefaultOwner = "default"

// ReviewThreshold is the confidence below which a classification needs manual review.
const ReviewThreshold = 0.7

type (
	TransactionType string

	Frequency string

	Transaction struct {
		ID          string
		Owner       string
		Date        time.Time // when it happened, not when it was stored
		Amount      decimal.Decimal
		Type        TransactionType
		Category    string
		Description string
		Tags        []string
		Frequency   Frequency // one-off, or the recurring frequency that spawned it
		RecurringID string
		Synced      bool // local cache bookkeeping only
	}

	ClassificationResult struct {
		Category   string
		Confidence float64
		Reason     string
	}

	Category struct {
		Name  string
		Type  string // income, expense or both
		Color string
		Icon  string
	}

	BulkFailure struct {
		Tx        Transaction
		Error     string
		Duplicate bool // the identifier was already stored
	}

	BulkResult struct {
		Saved  int
		Failed []BulkFailure
		Total  int
	}

	Report struct {
		Owner   string
		Days    int
		Income  decimal.Decimal
		Expense decimal.Decimal
		Net     decimal.Decimal
		Items   []Transaction
	}
)

// NeedsReview reports whether the result should be confirmed by a person before commit.
func (c ClassificationResult) NeedsReview() bool {
	return c.Confidence < ReviewThreshold
}

// TypeForAmount derives the transaction type from the amount sign.
// Zero amounts have no type.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	switch amount.Sign() {
	case 1:
		return Income
	case -1:
		return Expense
	default:
		return ""
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (f Frequency) Valid() bool {
	switch f {
	case OneOff, Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Recurring reports whether f is one of the repeating frequencies.
func (f Frequency) Recurring() bool {
	return f.Valid() && f != OneOff
}

// Step returns the fixed-width interval between two materializations.
// Months and years are approximated as 30 and 365 days.
func (f Frequency) Step() time.Duration {
	const day = 24 * time.Hour
	switch f {
	case Daily:
		return day
	case Weekly:
		return 7 * day
	case Yearly:
		return 365 * day
	default:
		return 30 * day
	}
}

// ParseFrequency accepts the canonical names plus the "One-Off" spelling older clients send.
func ParseFrequency(s string) (Frequency, bool) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return OneOff, true
	case "oneoff", "one_off", "one off":
		return OneOff, true
	}
	return f, f.Valid()
}

// Normalize fills in defaults: owner, frequency, type from sign, trimmed text.
func (t *Transaction) Normalize() {
	t.Owner = strings.TrimSpace(t.Owner)
	if t.Owner == "" {
		t.Owner = DefaultOwner
	}
	t.Category = strings.TrimSpace(t.Category)
	t.Description = strings.TrimSpace(t.Description)
	if t.Frequency == "" {
		t.Frequency = OneOff
	}
	if t.Type == "" {
		t.Type = TypeForAmount(t.Amount)
	}
	t.Tags = CleanTags(t.Tags)
}

// Validate checks the fields a commit requires. The declared type must agree with the sign.
func (t Transaction) Validate() error {
	if t.Amount.IsZero() {
		return NewValidationError("amount", "amount is required and must be non-zero")
	}
	if t.Category == "" {
		return NewValidationError("category", "category is required")
	}
	if t.Date.IsZero() {
		return NewValidationError("date", "date is required")
	}
	if len(t.Description) > 500 {
		return NewValidationError("description", "description too long (max 500 characters)")
	}
	if !t.Frequency.Valid() {
		return NewValidationError("frequency", "unknown frequency "+string(t.Frequency))
	}
	if !t.Type.Valid() {
		return NewValidationError("type", "type must be income or expense")
	}
	if t.Type != TypeForAmount(t.Amount) {
		return NewValidationError("type", "type "+string(t.Type)+" disagrees with amount sign")
	}
	return nil
}

// CleanTags trims, drops empties and removes duplicates while keeping order.
func CleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitTags parses the comma separated tag string used by the stores and the web form.
func SplitTags(s string) []string {
	return CleanTags(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	}))
}

// JoinTags is the inverse of SplitTags.
func JoinTags(tags []string) string {
	return strings.Join(CleanTags(tags), ",")
}
