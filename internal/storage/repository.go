package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the relational embedded backend.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner, date, amount, type, category, description, tags, frequency, recurring_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Owner, EncodeTime(tx.Date), tx.Amount.String(), string(tx.Type), tx.Category,
		tx.Description, core.JoinTags(tx.Tags), string(tx.Frequency), tx.RecurringID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"owner", tx.Owner,
		"amount", tx.Amount.String(),
		"category", tx.Category)
	return nil
}

const transactionColumns = `id, owner, date, amount, type, category, description, tags, frequency, recurring_id`

func (r *SQLiteRepository) List(ctx context.Context, owner string, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE owner = ?
		ORDER BY date DESC, created_at DESC
		LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (r *SQLiteRepository) ListSince(ctx context.Context, owner string, since time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE owner = ? AND date >= ?
		ORDER BY date DESC, created_at DESC`, owner, EncodeTime(since))
	if err != nil {
		return nil, fmt.Errorf("list transactions since: %w", err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		var (
			tx                         core.Transaction
			date, amount, typ, tags, f string
		)
		if err := rows.Scan(&tx.ID, &tx.Owner, &date, &amount, &typ, &tx.Category, &tx.Description, &tags, &f, &tx.RecurringID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var err error
		if tx.Date, err = DecodeTime(date); err != nil {
			return nil, err
		}
		if tx.Amount, err = DecodeAmount(amount); err != nil {
			return nil, err
		}
		tx.Type = core.TransactionType(typ)
		tx.Tags = core.SplitTags(tags)
		tx.Frequency = core.Frequency(f)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, type, color, icon FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.Name, &c.Type, &c.Color, &c.Icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (id, owner, amount, type, category, description, tags, frequency, start_date, end_date, next_due, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Owner, rule.Amount.String(), string(rule.Type), rule.Category, rule.Description,
		core.JoinTags(rule.Tags), string(rule.Frequency), EncodeTime(rule.StartDate), encodeOptionalTime(rule.EndDate),
		EncodeTime(rule.NextDue), rule.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert recurring rule %s: %w", rule.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert recurring rule: %w", err)
	}
	slog.InfoContext(ctx, "Recurring rule created",
		"id", rule.ID,
		"owner", rule.Owner,
		"frequency", rule.Frequency,
		"next_due", rule.NextDue.Format(time.DateOnly))
	return nil
}

const ruleColumns = `id, owner, amount, type, category, description, tags, frequency, start_date, end_date, next_due, active`

func (r *SQLiteRepository) ListRules(ctx context.Context, owner string) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM recurring_rules
		WHERE owner = ?
		ORDER BY next_due`, owner)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	return scanRules(rows)
}

func (r *SQLiteRepository) DueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error) {
	endOfDay := core.DateOnly(now).AddDate(0, 0, 1)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM recurring_rules
		WHERE active = 1 AND next_due < ?
		ORDER BY next_due`, EncodeTime(endOfDay))
	if err != nil {
		return nil, fmt.Errorf("list due rules: %w", err)
	}
	return scanRules(rows)
}

func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.RecurringRule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_rules SET next_due = ?, active = ?, end_date = ?
		WHERE id = ?`,
		EncodeTime(rule.NextDue), rule.Active, encodeOptionalTime(rule.EndDate), rule.ID)
	if err != nil {
		return fmt.Errorf("update recurring rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recurring rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update recurring rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

func scanRules(rows *sql.Rows) ([]core.RecurringRule, error) {
	defer rows.Close()
	var out []core.RecurringRule
	for rows.Next() {
		var (
			rule                            core.RecurringRule
			amount, typ, tags, f, start, nd string
			end                             sql.NullString
		)
		if err := rows.Scan(&rule.ID, &rule.Owner, &amount, &typ, &rule.Category, &rule.Description, &tags, &f,
			&start, &end, &nd, &rule.Active); err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		var err error
		if rule.Amount, err = DecodeAmount(amount); err != nil {
			return nil, err
		}
		if rule.StartDate, err = DecodeTime(start); err != nil {
			return nil, err
		}
		if rule.NextDue, err = DecodeTime(nd); err != nil {
			return nil, err
		}
		if end.Valid && end.String != "" {
			t, err := DecodeTime(end.String)
			if err != nil {
				return nil, err
			}
			rule.EndDate = &t
		}
		rule.Type = core.TransactionType(typ)
		rule.Tags = core.SplitTags(tags)
		rule.Frequency = core.Frequency(f)
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring rules: %w", err)
	}
	return out, nil
}

func encodeOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return EncodeTime(*t)
}

func isUniqueViolation(err error) bool {
	var target interface{ Code() int }
	if errors.As(err, &target) {
		// SQLITE_CONSTRAINT_PRIMARYKEY and SQLITE_CONSTRAINT_UNIQUE
		return target.Code() == 1555 || target.Code() == 2067
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
