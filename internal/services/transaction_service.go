package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/classifier"
	"fintrack/internal/core"
	"fintrack/internal/csvimport"
	"fintrack/internal/notify"
	"fintrack/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultListLimit  = 100
	MaxListLimit      = 1000
	DefaultReportDays = 7
)

// TransactionService is the application boundary for transaction writes, reads,
// classification and reporting. It is safe for concurrent use.
type TransactionService struct {
	store      storage.Repository
	classifier *classifier.Classifier
	parser     *csvimport.Parser
	notifier   notify.Notifier
	now        func() time.Time
	newID      func() string
}

type Option func(*TransactionService)

func WithNotifier(n notify.Notifier) Option {
	return func(s *TransactionService) { s.notifier = n }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *TransactionService) { s.newID = newID }
}

func WithCSVParser(p *csvimport.Parser) Option {
	return func(s *TransactionService) { s.parser = p }
}

func NewTransactionService(store storage.Repository, cls *classifier.Classifier, opts ...Option) *TransactionService {
	s := &TransactionService{
		store:      store,
		classifier: cls,
		parser:     csvimport.NewParser("", nil),
		notifier:   notify.Nop{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
	if s.classifier == nil {
		s.classifier = classifier.NewDefault()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepare defaults and validates tx for a commit.
func (s *TransactionService) prepare(tx core.Transaction) (core.Transaction, error) {
	tx.Tags = append([]string(nil), tx.Tags...)
	tx.Normalize()
	if tx.Date.IsZero() {
		tx.Date = s.now().UTC()
	}
	if err := tx.Validate(); err != nil {
		return tx, err
	}
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	tx.Synced = false
	return tx, nil
}

// Submit validates and stores a single transaction and returns it with its identifier.
func (s *TransactionService) Submit(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx, err := s.prepare(tx)
	if err != nil {
		return tx, err
	}
	if err := s.store.Insert(ctx, tx); err != nil {
		return tx, fmt.Errorf("save transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction submitted",
		"id", tx.ID,
		"owner", tx.Owner,
		"type", tx.Type,
		"amount", tx.Amount.String(),
		"category", tx.Category)

	notify.Best(ctx, s.notifier, amqp.KindTransaction, fmt.Sprintf("Added transaction: %s %s %s %s",
		tx.Owner, core.FormatAmount(tx.Amount), tx.Category, tx.Description))
	return tx, nil
}

// List returns at most limit transactions for owner, most recent first.
func (s *TransactionService) List(ctx context.Context, owner string, limit int) ([]core.Transaction, error) {
	owner = ownerOrDefault(owner)
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	txs, err := s.store.List(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// SubmitBulk commits each item independently: a failed item is reported and the rest
// are still saved. Items already saved are never rolled back.
func (s *TransactionService) SubmitBulk(ctx context.Context, txs []core.Transaction) core.BulkResult {
	res := core.BulkResult{Total: len(txs)}
	for _, in := range txs {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, core.BulkFailure{Tx: in, Error: err.Error()})
			continue
		}
		tx, err := s.prepare(in)
		if err == nil {
			err = s.store.Insert(ctx, tx)
		}
		if err != nil {
			res.Failed = append(res.Failed, core.BulkFailure{
				Tx:        in,
				Error:     err.Error(),
				Duplicate: errors.Is(err, storage.ErrDuplicate),
			})
			continue
		}
		res.Saved++
	}

	slog.InfoContext(ctx, "Bulk commit processed",
		"total", res.Total,
		"saved", res.Saved,
		"failed", len(res.Failed))
	if res.Saved > 0 {
		notify.Best(ctx, s.notifier, amqp.KindTransaction,
			fmt.Sprintf("Imported %d of %d transactions", res.Saved, res.Total))
	}
	return res
}

// Report totals owner's transactions over the trailing window of days ending at now.
func (s *TransactionService) Report(ctx context.Context, owner string, days int) (core.Report, error) {
	owner = ownerOrDefault(owner)
	if days <= 0 {
		days = DefaultReportDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	items, err := s.store.ListSince(ctx, owner, since)
	if err != nil {
		return core.Report{}, fmt.Errorf("report transactions: %w", err)
	}
	rep := core.Report{Owner: owner, Days: days, Income: decimal.Zero, Expense: decimal.Zero, Items: items}
	for _, tx := range items {
		switch tx.Amount.Sign() {
		case 1:
			rep.Income = rep.Income.Add(tx.Amount)
		case -1:
			rep.Expense = rep.Expense.Add(tx.Amount)
		}
	}
	rep.Net = rep.Income.Add(rep.Expense)
	return rep, nil
}

func (s *TransactionService) Classify(description string, amount decimal.Decimal) core.ClassificationResult {
	return s.classifier.Classify(description, amount)
}

// ImportRow is one parsed statement line with the classification that filled its category.
type ImportRow struct {
	Line           int
	Tx             core.Transaction
	Classification core.ClassificationResult
}

type ImportSummary struct {
	Total          int
	AutoClassified int
	NeedsReview    int
	Invalid        int
}

type ImportPreview struct {
	Summary ImportSummary
	Rows    []ImportRow
	Errors  []csvimport.RowError
}

// PreviewImport parses a statement and classifies rows without a category. Nothing is
// persisted; the caller reviews the rows and commits them with SubmitBulk.
func (s *TransactionService) PreviewImport(ctx context.Context, owner string, r io.Reader) (ImportPreview, error) {
	parsed, err := s.parser.Parse(r)
	if err != nil {
		return ImportPreview{}, core.NewValidationError("file", err.Error())
	}
	owner = ownerOrDefault(owner)
	preview := ImportPreview{Errors: parsed.Errors, Rows: make([]ImportRow, 0, len(parsed.Rows))}
	for _, row := range parsed.Rows {
		tx := row.Tx
		tx.Owner = owner
		var result core.ClassificationResult
		if tx.Category == "" {
			result = s.classifier.Classify(tx.Description, tx.Amount)
			tx.Category = result.Category
			if result.NeedsReview() {
				preview.Summary.NeedsReview++
			} else {
				preview.Summary.AutoClassified++
			}
		} else {
			result = core.ClassificationResult{Category: tx.Category, Confidence: 1, Reason: "Provided"}
		}
		preview.Rows = append(preview.Rows, ImportRow{Line: row.Line, Tx: tx, Classification: result})
	}
	preview.Summary.Total = len(preview.Rows)
	preview.Summary.Invalid = len(parsed.Errors)

	slog.InfoContext(ctx, "CSV import previewed",
		"owner", owner,
		"rows", preview.Summary.Total,
		"auto_classified", preview.Summary.AutoClassified,
		"needs_review", preview.Summary.NeedsReview,
		"invalid", preview.Summary.Invalid)
	return preview, nil
}

// CreateRule validates and stores a recurring rule. When NextDue is unset it becomes
// one step after StartDate.
func (s *TransactionService) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.Owner = ownerOrDefault(rule.Owner)
	if rule.StartDate.IsZero() {
		rule.StartDate = core.DateOnly(s.now())
	}
	if rule.NextDue.IsZero() {
		base := core.NewRecurringRule(rule.Owner, rule.Amount, rule.Category, rule.Description, rule.Frequency, rule.StartDate, rule.EndDate)
		base.ID = rule.ID
		base.Tags = core.CleanTags(rule.Tags)
		rule = base
	}
	if rule.Type == "" {
		rule.Type = core.TypeForAmount(rule.Amount)
	}
	if err := rule.Validate(); err != nil {
		return rule, err
	}
	if rule.ID == "" {
		rule.ID = s.newID()
	}
	rule.Active = true
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return rule, fmt.Errorf("save recurring rule: %w", err)
	}
	return rule, nil
}

func (s *TransactionService) ListRules(ctx context.Context, owner string) ([]core.RecurringRule, error) {
	rules, err := s.store.ListRules(ctx, ownerOrDefault(owner))
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	return rules, nil
}

func (s *TransactionService) Categories(ctx context.Context) ([]core.Category, error) {
	cats, err := s.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// Ready reports whether the backing store answers.
func (s *TransactionService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func ownerOrDefault(owner string) string {
	if owner == "" {
		return core.DefaultOwner
	}
	return owner
}

// IsValidation reports whether err is a client input problem.
func IsValidation(err error) bool {
	return errors.Is(err, core.ErrValidation)
}
