// Package gcs stores transactions and recurring rules as JSON objects in a
// Cloud Storage bucket, one object per record:
//
//	<prefix>/transactions/<owner>/<id>.json
//	<prefix>/recurring/<owner>/<id>.json
//
// Listing reads every object of an owner, which suits personal-scale data sets.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

const (
	transactionsDir = "transactions"
	recurringDir    = "recurring"
)

type Store struct {
	objects objects
	prefix  string
	close   func() error
}

// Open connects to the named bucket.
func Open(ctx context.Context, bucketName, prefix string, opts ClientOptions) (*Store, error) {
	if bucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	b, err := openBucket(ctx, bucketName, opts)
	if err != nil {
		return nil, err
	}
	s := newStore(b, prefix)
	s.close = b.Close
	return s, nil
}

func newStore(o objects, prefix string) *Store {
	return &Store{objects: o, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) Close() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.objects.Ping(ctx)
}

func (s *Store) key(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	if s.prefix != "" {
		escaped = append(escaped, s.prefix)
	}
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return path.Join(escaped...)
}

type transactionRecord struct {
	ID          string          `json:"id"`
	Owner       string          `json:"user_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags,omitempty"`
	Frequency   string          `json:"frequency"`
	RecurringID string          `json:"recurring_id,omitempty"`
}

type ruleRecord struct {
	ID          string          `json:"id"`
	Owner       string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags,omitempty"`
	Frequency   string          `json:"frequency"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	NextDue     time.Time       `json:"next_due_date"`
	Active      bool            `json:"is_active"`
}

func (s *Store) Insert(ctx context.Context, tx core.Transaction) error {
	data, err := json.Marshal(transactionRecord{
		ID:          tx.ID,
		Owner:       tx.Owner,
		Date:        tx.Date.UTC(),
		Amount:      tx.Amount,
		Type:        string(tx.Type),
		Category:    tx.Category,
		Description: tx.Description,
		Tags:        tx.Tags,
		Frequency:   string(tx.Frequency),
		RecurringID: tx.RecurringID,
	})
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	key := s.key(transactionsDir, tx.Owner, tx.ID+".json")
	if err := s.objects.Put(ctx, key, data, true); err != nil {
		if errors.Is(err, errObjectExists) {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	slog.DebugContext(ctx, "Transaction saved to bucket", "key", key)
	return nil
}

func (s *Store) List(ctx context.Context, owner string, limit int) ([]core.Transaction, error) {
	all, err := s.ListSince(ctx, owner, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) ListSince(ctx context.Context, owner string, since time.Time) ([]core.Transaction, error) {
	keys, err := s.objects.Keys(ctx, s.key(transactionsDir, owner)+"/")
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(keys))
	for _, key := range keys {
		data, err := s.objects.Get(ctx, key)
		if errors.Is(err, errObjectMissing) {
			continue // deleted between list and read
		}
		if err != nil {
			return nil, fmt.Errorf("read transaction: %w", err)
		}
		var rec transactionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable transaction object", "key", key, "error", err)
			continue
		}
		if rec.Date.Before(since) {
			continue
		}
		out = append(out, core.Transaction{
			ID:          rec.ID,
			Owner:       rec.Owner,
			Date:        rec.Date.UTC(),
			Amount:      rec.Amount,
			Type:        core.TransactionType(rec.Type),
			Category:    rec.Category,
			Description: rec.Description,
			Tags:        rec.Tags,
			Frequency:   core.Frequency(rec.Frequency),
			RecurringID: rec.RecurringID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// Categories returns the built-in catalogue; the bucket holds no category objects.
func (s *Store) Categories(ctx context.Context) ([]core.Category, error) {
	return core.DefaultCategories(), nil
}

func (s *Store) CreateRule(ctx context.Context, rule core.RecurringRule) error {
	return s.putRule(ctx, rule, true)
}

func (s *Store) UpdateRule(ctx context.Context, rule core.RecurringRule) error {
	key := s.key(recurringDir, rule.Owner, rule.ID+".json")
	if _, err := s.objects.Get(ctx, key); err != nil {
		if errors.Is(err, errObjectMissing) {
			return fmt.Errorf("update recurring rule %s: %w", rule.ID, storage.ErrNotFound)
		}
		return fmt.Errorf("update recurring rule: %w", err)
	}
	return s.putRule(ctx, rule, false)
}

func (s *Store) putRule(ctx context.Context, rule core.RecurringRule, create bool) error {
	data, err := json.Marshal(ruleRecord{
		ID:          rule.ID,
		Owner:       rule.Owner,
		Amount:      rule.Amount,
		Type:        string(rule.Type),
		Category:    rule.Category,
		Description: rule.Description,
		Tags:        rule.Tags,
		Frequency:   string(rule.Frequency),
		StartDate:   rule.StartDate.UTC(),
		EndDate:     rule.EndDate,
		NextDue:     rule.NextDue.UTC(),
		Active:      rule.Active,
	})
	if err != nil {
		return fmt.Errorf("encode recurring rule: %w", err)
	}
	key := s.key(recurringDir, rule.Owner, rule.ID+".json")
	if err := s.objects.Put(ctx, key, data, create); err != nil {
		if errors.Is(err, errObjectExists) {
			return fmt.Errorf("insert recurring rule %s: %w", rule.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("write recurring rule: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, owner string) ([]core.RecurringRule, error) {
	return s.rules(ctx, s.key(recurringDir, owner)+"/")
}

func (s *Store) DueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error) {
	all, err := s.rules(ctx, s.key(recurringDir)+"/")
	if err != nil {
		return nil, err
	}
	due := all[:0]
	for _, r := range all {
		if r.IsDue(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *Store) rules(ctx context.Context, prefix string) ([]core.RecurringRule, error) {
	keys, err := s.objects.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	out := make([]core.RecurringRule, 0, len(keys))
	for _, key := range keys {
		data, err := s.objects.Get(ctx, key)
		if errors.Is(err, errObjectMissing) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read recurring rule: %w", err)
		}
		var rec ruleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable rule object", "key", key, "error", err)
			continue
		}
		out = append(out, core.RecurringRule{
			ID:          rec.ID,
			Owner:       rec.Owner,
			Amount:      rec.Amount,
			Type:        core.TransactionType(rec.Type),
			Category:    rec.Category,
			Description: rec.Description,
			Tags:        rec.Tags,
			Frequency:   core.Frequency(rec.Frequency),
			StartDate:   rec.StartDate.UTC(),
			EndDate:     rec.EndDate,
			NextDue:     rec.NextDue.UTC(),
			Active:      rec.Active,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextDue.Before(out[j].NextDue) })
	return out, nil
}
