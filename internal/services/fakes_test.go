package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// memStore is an in-memory storage.Repository.
type memStore struct {
	mu        sync.Mutex
	txs       []core.Transaction
	rules     map[string]core.RecurringRule
	failOn    func(core.Transaction) error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{rules: make(map[string]core.RecurringRule)}
}

func (m *memStore) Insert(_ context.Context, tx core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		if err := m.failOn(tx); err != nil {
			return err
		}
	}
	for _, existing := range m.txs {
		if existing.ID == tx.ID {
			return storage.ErrDuplicate
		}
	}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memStore) List(ctx context.Context, owner string, limit int) ([]core.Transaction, error) {
	all, _ := m.ListSince(ctx, owner, time.Time{})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) ListSince(_ context.Context, owner string, since time.Time) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Transaction
	for _, tx := range m.txs {
		if tx.Owner == owner && !tx.Date.Before(since) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memStore) CreateRule(_ context.Context, r core.RecurringRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

func (m *memStore) ListRules(_ context.Context, owner string) ([]core.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurringRule
	for _, r := range m.rules {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) DueRules(_ context.Context, now time.Time) ([]core.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurringRule
	for _, r := range m.rules {
		if r.IsDue(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateRule(_ context.Context, r core.RecurringRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.rules[r.ID]; !ok {
		return storage.ErrNotFound
	}
	m.rules[r.ID] = r
	return nil
}

func (m *memStore) Categories(context.Context) ([]core.Category, error) {
	return core.DefaultCategories(), nil
}

func (m *memStore) Ping(context.Context) error { return nil }

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

var errStoreDown = errors.New("store down")

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "id-" + string(rune('0'+n))
	}
}
