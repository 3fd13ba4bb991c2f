package storage

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate id")
)

// Ports implemented by every persistence backend.
type (
	TransactionStore interface {
		// Insert stores tx under tx.ID, which the caller assigns.
		Insert(ctx context.Context, tx core.Transaction) error
		// List returns at most limit transactions for owner, most recent first.
		List(ctx context.Context, owner string, limit int) ([]core.Transaction, error)
		// ListSince returns every transaction for owner dated at or after since, most recent first.
		ListSince(ctx context.Context, owner string, since time.Time) ([]core.Transaction, error)
	}

	RecurringStore interface {
		CreateRule(ctx context.Context, rule core.RecurringRule) error
		ListRules(ctx context.Context, owner string) ([]core.RecurringRule, error)
		// DueRules returns active rules of every owner whose next due date is on or before now.
		DueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error)
		UpdateRule(ctx context.Context, rule core.RecurringRule) error
	}

	CategoryReader interface {
		Categories(ctx context.Context) ([]core.Category, error)
	}

	// Repository is the full surface the transaction service needs.
	Repository interface {
		TransactionStore
		RecurringStore
		CategoryReader
		Ping(ctx context.Context) error
	}
)
