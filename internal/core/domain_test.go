package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewGroupID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewGroupID()
		if len(id) != GroupIDLength {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		for _, r := range id {
			if r < 'A' || r > 'Z' {
				t.Fatalf("id %q contains non-uppercase letter %q", id, r)
			}
		}
	}
}

func TestNormalizeGroupID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ABCDEFGHI", "ABCDEFGHI", true},
		{"  abcdefghi ", "ABCDEFGHI", true},
		{"ABCDEFGH", "", false},
		{"ABCDEFGHIJ", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeGroupID(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && err != ErrInvalidGroupID {
			t.Fatalf("%q: expected ErrInvalidGroupID, got %v", tc.in, err)
		}
	}
}

func TestNormalizeCategory(t *testing.T) {
	if got := NormalizeCategory("   "); got != DefaultCategory {
		t.Fatalf("blank category = %q, want %q", got, DefaultCategory)
	}
	if got := NormalizeCategory(" Venue "); got != "Venue" {
		t.Fatalf("category = %q, want Venue", got)
	}
}

func TestExpenseInputValidate(t *testing.T) {
	good := ExpenseInput{GroupID: "ABCDEFGHI", Username: "ali", ExpenseName: "Venue Booking", Amount: 50000, Category: "Venue"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []ExpenseInput{
		{Username: "", ExpenseName: "a", Amount: 1},
		{Username: "ali", ExpenseName: " ", Amount: 1},
		{Username: "ali", ExpenseName: "a", Amount: 0},
		{Username: "ali", ExpenseName: "a", Amount: -5},
	}
	for i, in := range bads {
		if err := in.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseInputValidateNameLength(t *testing.T) {
	tests := []struct {
		name    string
		expense string
		wantErr error
	}{
		{"ascii at limit", strings.Repeat("a", MaxExpenseNameLength), nil},
		{"ascii over limit", strings.Repeat("a", MaxExpenseNameLength+1), ErrNameTooLong},
		{"multibyte under limit", strings.Repeat("ش", 120), nil},
		{"multibyte at limit", strings.Repeat("ش", MaxExpenseNameLength), nil},
		{"multibyte over limit", strings.Repeat("ش", MaxExpenseNameLength+1), ErrNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ExpenseInput{GroupID: "ABCDEFGHI", Username: "ali", ExpenseName: tt.expense, Amount: 1}
			if err := in.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpenseStamp(t *testing.T) {
	at := time.Date(2025, 11, 3, 18, 4, 5, 0, time.UTC)
	var e Expense
	e.Stamp(at)
	if e.Date != "2025-11-03" || e.Time != "18:04:05" || !e.CreatedAt.Equal(at) {
		t.Fatalf("unexpected stamp: %+v", e)
	}
}
