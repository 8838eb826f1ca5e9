package core

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"
)

// GroupIDLength is the number of characters in a group identifier.
const GroupIDLength = 9

// MaxExpenseNameLength is the longest expense name accepted, in characters.
const MaxExpenseNameLength = 200

// DefaultCategory is used when an expense arrives without a category.
const DefaultCategory = "Other"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

type (
	// Group is a wedding ledger shared by its members.
	Group struct {
		GroupID   string    `json:"group_id"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Member is a user's membership in one group. UserID is scoped to the group.
	Member struct {
		GroupID  string    `json:"group_id"`
		UserID   int       `json:"user_id"`
		Username string    `json:"username"`
		JoinedAt time.Time `json:"joined_at"`
	}

	// Expense is one recorded spend. Username is copied from the member at
	// creation time; Date and Time are derived from CreatedAt.
	Expense struct {
		GroupID     string    `json:"group_id"`
		UserID      int       `json:"user_id"`
		Username    string    `json:"username"`
		ExpenseName string    `json:"expense_name"`
		Amount      int64     `json:"amount"`
		Date        string    `json:"date"`
		Time        string    `json:"time"`
		Category    string    `json:"category"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// Total is an aggregate over a set of expenses.
	Total struct {
		Total int64 `json:"total"`
		Count int   `json:"count"`
	}

	// Bucket is a Total keyed by category or username.
	Bucket struct {
		Key   string
		Total int64
		Count int
	}

	// ExpenseInput carries the caller-supplied fields of a new expense.
	ExpenseInput struct {
		GroupID     string
		Username    string
		ExpenseName string
		Amount      int64
		Category    string
	}
)

var (
	ErrInvalidGroupID   = errors.New("group id must be 9 characters")
	ErrEmptyUsername    = errors.New("empty username")
	ErrEmptyExpenseName = errors.New("empty expense name")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNameTooLong      = errors.New("expense name too long (max 200 characters)")
)

const groupIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewGroupID returns a random identifier of GroupIDLength uppercase letters.
// Uniqueness against existing groups is the caller's concern.
func NewGroupID() string {
	var b strings.Builder
	b.Grow(GroupIDLength)
	for range GroupIDLength {
		b.WriteByte(groupIDAlphabet[rand.IntN(len(groupIDAlphabet))])
	}
	return b.String()
}

// NormalizeGroupID trims and uppercases a user-supplied identifier.
func NormalizeGroupID(s string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(s))
	if len(id) != GroupIDLength {
		return "", ErrInvalidGroupID
	}
	return id, nil
}

// NormalizeCategory falls back to DefaultCategory for blank input.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory
	}
	return s
}

func (in ExpenseInput) Validate() error {
	if strings.TrimSpace(in.Username) == "" {
		return ErrEmptyUsername
	}
	if strings.TrimSpace(in.ExpenseName) == "" {
		return ErrEmptyExpenseName
	}
	if utf8.RuneCountInString(in.ExpenseName) > MaxExpenseNameLength {
		return ErrNameTooLong
	}
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Stamp fills the derived date and time strings from CreatedAt.
func (e *Expense) Stamp(at time.Time) {
	e.CreatedAt = at
	e.Date = at.Format(DateLayout)
	e.Time = at.Format(TimeLayout)
}
