// Package cache is the desktop client's durable local mirror of transactions.
//
// Records created on the desktop start unsynced; records pulled from the remote
// feed are stored already synced. Batch writes run in a single SQL transaction so
// a concurrent reader sees either the whole batch or none of it.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Cache struct {
	db    *sql.DB
	owner string
	now   func() time.Time
	newID func() string
}

type Option func(*Cache)

// WithOwner sets the owner stamped on locally created records.
func WithOwner(owner string) Option {
	return func(c *Cache) {
		if owner != "" {
			c.owner = owner
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Cache) { c.newID = newID }
}

// Open creates or opens the cache database at dbPath and applies its migrations.
func Open(dbPath string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	if err := storage.RunMigrations(dbPath, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	c := &Cache{db: db, owner: core.DefaultOwner, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Add validates and stores a locally created transaction as unsynced.
func (c *Cache) Add(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.Tags = append([]string(nil), tx.Tags...)
	if tx.Owner == "" {
		tx.Owner = c.owner
	}
	tx.Normalize()
	if tx.Date.IsZero() {
		tx.Date = c.now().UTC()
	}
	if err := tx.Validate(); err != nil {
		return tx, err
	}
	if tx.ID == "" {
		tx.ID = c.newID()
	}
	tx.Synced = false

	res, err := c.db.ExecContext(ctx, insertSQL("INSERT OR IGNORE"), insertArgs(tx)...)
	if err != nil {
		return tx, fmt.Errorf("add cached transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx, fmt.Errorf("add cached transaction %s: %w", tx.ID, storage.ErrDuplicate)
	}
	slog.DebugContext(ctx, "Transaction cached", "id", tx.ID, "amount", tx.Amount.String(), "category", tx.Category)
	return tx, nil
}

const cachedColumns = `id, owner, date, amount, type, category, description, tags, frequency, recurring_id, synced`

func insertSQL(verb string) string {
	return verb + ` INTO cached_transactions (` + cachedColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func insertArgs(tx core.Transaction) []any {
	synced := 0
	if tx.Synced {
		synced = 1
	}
	return []any{tx.ID, tx.Owner, storage.EncodeTime(tx.Date), tx.Amount.String(), string(tx.Type), tx.Category,
		tx.Description, core.JoinTags(tx.Tags), string(tx.Frequency), tx.RecurringID, synced}
}

// All returns every cached record, most recent first.
func (c *Cache) All(ctx context.Context) ([]core.Transaction, error) {
	return c.query(ctx, `SELECT `+cachedColumns+` FROM cached_transactions ORDER BY date DESC, created_at DESC`)
}

// Recent returns at most limit records, most recent first.
func (c *Cache) Recent(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.query(ctx, `SELECT `+cachedColumns+` FROM cached_transactions ORDER BY date DESC, created_at DESC LIMIT ?`, limit)
}

// Unsynced returns the records not yet confirmed by the remote, oldest first.
func (c *Cache) Unsynced(ctx context.Context) ([]core.Transaction, error) {
	return c.query(ctx, `SELECT `+cachedColumns+` FROM cached_transactions WHERE synced = 0 ORDER BY date, created_at`)
}

// Fingerprints returns the content fingerprint of every cached record.
func (c *Cache) Fingerprints(ctx context.Context) (map[core.Fingerprint]struct{}, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT date, amount, description FROM cached_transactions`)
	if err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[core.Fingerprint]struct{})
	for rows.Next() {
		var date, amount, desc string
		if err := rows.Scan(&date, &amount, &desc); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		t, err := storage.DecodeTime(date)
		if err != nil {
			return nil, err
		}
		d, err := storage.DecodeAmount(amount)
		if err != nil {
			return nil, err
		}
		out[core.NewFingerprint(t, d, desc)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return out, nil
}

// InsertSynced stores remote records as synced in one transaction and returns how
// many were new. Records whose identifier is already cached are skipped.
func (c *Cache) InsertSynced(ctx context.Context, batch []core.Transaction) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	inserted := 0
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertSQL("INSERT OR IGNORE"))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range batch {
			rec.Tags = append([]string(nil), rec.Tags...)
			if rec.Owner == "" {
				rec.Owner = c.owner
			}
			rec.Normalize()
			if rec.ID == "" {
				rec.ID = c.newID()
			}
			if !rec.Type.Valid() {
				return core.NewValidationError("type", fmt.Sprintf("remote record %s has no usable type", rec.ID))
			}
			rec.Synced = true
			res, err := stmt.ExecContext(ctx, insertArgs(rec)...)
			if err != nil {
				return fmt.Errorf("insert synced %s: %w", rec.ID, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// MarkSynced flips the synced flag for ids in one transaction and returns the
// number of records changed.
func (c *Cache) MarkSynced(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marked := 0
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE cached_transactions SET synced = 1 WHERE id = ? AND synced = 0`)
		if err != nil {
			return fmt.Errorf("prepare mark synced: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return fmt.Errorf("mark synced %s: %w", id, err)
			}
			n, _ := res.RowsAffected()
			marked += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
	Count   int
}

// Totals sums cached amounts dated at or after since.
func (c *Cache) Totals(ctx context.Context, since time.Time) (Totals, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT amount FROM cached_transactions WHERE date >= ?`, storage.EncodeTime(since))
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return Totals{}, fmt.Errorf("scan amount: %w", err)
		}
		d, err := storage.DecodeAmount(s)
		if err != nil {
			return Totals{}, err
		}
		if d.IsPositive() {
			t.Income = t.Income.Add(d)
		} else {
			t.Expense = t.Expense.Add(d)
		}
		t.Count++
	}
	if err := rows.Err(); err != nil {
		return Totals{}, fmt.Errorf("iterate totals: %w", err)
	}
	t.Net = t.Income.Add(t.Expense)
	return t, nil
}

func (c *Cache) inTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.WarnContext(ctx, "Cache rollback failed", "error", rbErr)
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cache transaction: %w", err)
	}
	return nil
}

func (c *Cache) query(ctx context.Context, q string, args ...any) ([]core.Transaction, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cached transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx                         core.Transaction
			date, amount, typ, tags, f string
			synced                     int
		)
		if err := rows.Scan(&tx.ID, &tx.Owner, &date, &amount, &typ, &tx.Category, &tx.Description, &tags, &f, &tx.RecurringID, &synced); err != nil {
			return nil, fmt.Errorf("scan cached transaction: %w", err)
		}
		if tx.Date, err = storage.DecodeTime(date); err != nil {
			return nil, err
		}
		if tx.Amount, err = storage.DecodeAmount(amount); err != nil {
			return nil, err
		}
		tx.Type = core.TransactionType(typ)
		tx.Tags = core.SplitTags(tags)
		tx.Frequency = core.Frequency(strings.TrimSpace(f))
		tx.Synced = synced == 1
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached transactions: %w", err)
	}
	return out, nil
}
