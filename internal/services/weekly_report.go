package services

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/notify"
)

// FormatWeekly renders the one-line weekly summary sent to the owner.
func FormatWeekly(r core.Report) string {
	return fmt.Sprintf("Weekly: income=%s, expense=%s, net=%s",
		r.Income.StringFixed(2), r.Expense.StringFixed(2), r.Net.StringFixed(2))
}

// WeeklyReport computes the trailing seven day report for owner and notifies it.
func (s *TransactionService) WeeklyReport(ctx context.Context, owner string) (core.Report, error) {
	rep, err := s.Report(ctx, owner, 7)
	if err != nil {
		return rep, err
	}
	notify.Best(ctx, s.notifier, amqp.KindReport, FormatWeekly(rep))
	return rep, nil
}
