// Package sheets defines the spreadsheet mirror of recorded expenses.
package sheets

import (
	"context"
	"errors"
	"strings"

	"shadiflow/internal/core"
)

// ExpenseWriter appends one expense row and returns a reference to it.
type ExpenseWriter interface {
	Append(ctx context.Context, e core.Expense) (rowRef string, err error)
}

var ErrIncompleteExpense = errors.New("expense is missing group, member or amount")

// Row renders e in column order: date, time, group, member, name, amount,
// category.
func Row(e core.Expense) []any {
	return []any{e.Date, e.Time, e.GroupID, e.Username, e.ExpenseName, e.Amount, e.Category}
}

// Check rejects expenses that could not have come out of the ledger.
func Check(e core.Expense) error {
	if strings.TrimSpace(e.GroupID) == "" || strings.TrimSpace(e.Username) == "" || e.Amount <= 0 {
		return ErrIncompleteExpense
	}
	return nil
}
