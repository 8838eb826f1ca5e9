// Package worker mirrors ledger events into the expense spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shadiflow/internal/amqp"
	"shadiflow/internal/core"
	"shadiflow/internal/sheets"
)

// SyncWorker appends recorded expenses to the sheet.
type SyncWorker struct {
	sheets  sheets.ExpenseWriter
	logger  *slog.Logger
	observe func(eventType string, err error)
}

type Option func(*SyncWorker)

func WithLogger(l *slog.Logger) Option { return func(w *SyncWorker) { w.logger = l } }

// WithObserver is called once per handled event with the sync outcome.
func WithObserver(fn func(eventType string, err error)) Option {
	return func(w *SyncWorker) { w.observe = fn }
}

func NewSyncWorker(writer sheets.ExpenseWriter, opts ...Option) *SyncWorker {
	w := &SyncWorker{sheets: writer, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEvent is an amqp.Handler. Only expense.recorded events touch the
// sheet. Events that can never be written are acknowledged and logged; an
// error return asks the broker to redeliver.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if ev.Type != amqp.EventExpenseRecorded {
		w.logger.DebugContext(ctx, "Ignoring ledger event", "id", ev.ID, "type", ev.Type, "group_id", ev.GroupID)
		return nil
	}
	if ev.Expense == nil {
		w.logger.WarnContext(ctx, "Expense event without payload, dropping", "id", ev.ID, "group_id", ev.GroupID)
		w.record(ev.Type, sheets.ErrIncompleteExpense)
		return nil
	}

	ref, err := w.sheets.Append(ctx, *ev.Expense)
	w.record(ev.Type, err)
	if errors.Is(err, sheets.ErrIncompleteExpense) {
		w.logger.WarnContext(ctx, "Expense cannot be mirrored, dropping",
			"id", ev.ID,
			"group_id", ev.GroupID,
			"error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("append expense %s: %w", ev.ID, err)
	}

	w.logger.InfoContext(ctx, "Expense mirrored to sheet",
		"id", ev.ID,
		"group_id", ev.GroupID,
		"username", ev.Expense.Username,
		"row", ref)
	return nil
}

// Backfill appends expenses in order and returns how many were written. It
// stops at the first failure other than an incomplete expense.
func (w *SyncWorker) Backfill(ctx context.Context, expenses []core.Expense) (int, error) {
	written := 0
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		_, err := w.sheets.Append(ctx, e)
		if errors.Is(err, sheets.ErrIncompleteExpense) {
			w.logger.WarnContext(ctx, "Skipping incomplete expense", "group_id", e.GroupID, "expense", e.ExpenseName)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("backfill %s/%s: %w", e.GroupID, e.ExpenseName, err)
		}
		written++
	}
	w.logger.InfoContext(ctx, "Backfill completed", "written", written, "total", len(expenses))
	return written, nil
}

func (w *SyncWorker) record(t amqp.EventType, err error) {
	if w.observe != nil {
		w.observe(string(t), err)
	}
}
