// Package memory is an in-process ExpenseWriter used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"shadiflow/internal/core"
	ports "shadiflow/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]any
	seen map[string]int
}

var _ ports.ExpenseWriter = (*Store)(nil)

func New() *Store {
	return &Store{seen: make(map[string]int)}
}

// Append stores the rendered row and returns a synthetic row reference.
// Appending the same expense again returns the original reference.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	if err := ports.Check(e); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(e)
	if n, ok := s.seen[key]; ok {
		return fmt.Sprintf("mem:%d", n), nil
	}
	s.rows = append(s.rows, ports.Row(e))
	s.seen[key] = len(s.rows)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the appended rows.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	copy(out, s.rows)
	return out
}

func rowKey(e core.Expense) string {
	return fmt.Sprintf("%s|%d|%s|%d|%s", e.GroupID, e.UserID, e.ExpenseName, e.Amount, e.CreatedAt.Format("2006-01-02T15:04:05.000000000"))
}
