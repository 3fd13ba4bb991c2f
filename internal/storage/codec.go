package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is fixed width so TEXT columns sort chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

func EncodeTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func DecodeTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		// rows written by hand or by older tools
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode time %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

func DecodeAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode amount %q: %w", s, err)
	}
	return d, nil
}
