package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/notify"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

type recurringStore interface {
	storage.RecurringStore
	storage.TransactionStore
}

// RecurringProcessor materializes due recurring rules into concrete transactions.
type RecurringProcessor struct {
	store    recurringStore
	notifier notify.Notifier
}

// NewRecurringProcessor creates a processor; a nil notifier disables notifications.
func NewRecurringProcessor(store recurringStore, notifier notify.Notifier) *RecurringProcessor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &RecurringProcessor{
		store:    store,
		notifier: notifier,
	}
}

// occurrenceID is stable for a rule and due date, so re-materializing the same
// occurrence hits storage.ErrDuplicate instead of creating a second transaction.
func occurrenceID(rule core.RecurringRule) string {
	name := "recurring:" + rule.ID + ":" + rule.NextDue.Format(time.DateOnly)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

type ProcessResult struct {
	Checked     int
	Processed   int
	Deactivated int
	Failed      int
}

// ProcessDue materializes at most one transaction per due rule, dated at the rule's due
// date, then advances the rule by one step. A rule several steps behind catches up one
// step per pass. Per-rule failures are logged and skipped.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (ProcessResult, error) {
	if p.store == nil {
		return ProcessResult{}, fmt.Errorf("processor not properly initialized")
	}

	rules, err := p.store.DueRules(ctx, now)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("failed to get due recurring rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring rules",
		"due", len(rules),
		"processing_date", now.Format(time.DateOnly))

	res := ProcessResult{Checked: len(rules)}
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !rule.IsDue(now) {
			continue
		}

		tx := rule.Materialize()
		tx.ID = occurrenceID(rule)
		tx.Normalize()
		if err := tx.Validate(); err != nil {
			slog.ErrorContext(ctx, "Recurring rule produced an invalid transaction",
				"recurring_id", rule.ID,
				"error", err)
			res.Failed++
			continue
		}
		err := p.store.Insert(ctx, tx)
		alreadyCreated := errors.Is(err, storage.ErrDuplicate)
		if err != nil && !alreadyCreated {
			// rule is not advanced, so the next pass retries it
			slog.ErrorContext(ctx, "Failed to create transaction from recurring rule",
				"recurring_id", rule.ID,
				"description", rule.Description,
				"error", err)
			res.Failed++
			continue
		}

		active := rule.Advance()
		if err := p.store.UpdateRule(ctx, rule); err != nil {
			// the occurrence ID makes the next pass skip the insert and retry only this
			slog.ErrorContext(ctx, "Failed to advance recurring rule",
				"recurring_id", rule.ID,
				"transaction_id", tx.ID,
				"error", err)
			res.Failed++
			continue
		}
		if alreadyCreated {
			slog.InfoContext(ctx, "Recurring occurrence already stored, rule advanced",
				"recurring_id", rule.ID,
				"transaction_id", tx.ID,
				"next_due", rule.NextDue.Format(time.DateOnly))
			continue
		}

		res.Processed++
		slog.InfoContext(ctx, "Created transaction from recurring rule",
			"recurring_id", rule.ID,
			"transaction_id", tx.ID,
			"amount", tx.Amount.String(),
			"frequency", rule.Frequency,
			"next_due", rule.NextDue.Format(time.DateOnly),
			"active", active)

		notify.Best(ctx, p.notifier, amqp.KindRecurring, fmt.Sprintf(
			"Recurring transaction processed\n%s\nAmount: %s\nCategory: %s\nFrequency: %s",
			rule.Description, core.FormatAmount(rule.Amount), rule.Category, rule.Frequency))

		if !active {
			res.Deactivated++
			notify.Best(ctx, p.notifier, amqp.KindRecurring, fmt.Sprintf(
				"Recurring transaction ended\n%s has reached its end date and has been deactivated.",
				rule.Description))
		}
	}

	if res.Processed > 0 {
		notify.Best(ctx, p.notifier, amqp.KindRecurring,
			fmt.Sprintf("Processed %d recurring transactions today.", res.Processed))
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"processed", res.Processed,
		"deactivated", res.Deactivated,
		"failed", res.Failed,
		"total_checked", res.Checked)

	return res, nil
}
