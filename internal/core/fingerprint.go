package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// FingerprintLayout is the timestamp precision used when matching records across stores.
const FingerprintLayout = "2006-01-02T15:04:05Z"

// Fingerprint identifies "the same transaction" across the local cache and the remote feed.
// Local records have no server identifier until synced, so the content triple is used instead.
type Fingerprint struct {
	Date        string
	Amount      string
	Description string
}

func NewFingerprint(date time.Time, amount decimal.Decimal, description string) Fingerprint {
	return Fingerprint{
		Date:        date.UTC().Truncate(time.Second).Format(FingerprintLayout),
		Amount:      amount.String(),
		Description: description,
	}
}

func (t Transaction) Fingerprint() Fingerprint {
	return NewFingerprint(t.Date, t.Amount, t.Description)
}
