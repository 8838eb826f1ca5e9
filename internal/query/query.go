// Package query holds the read-only projections over ledger records.
//
// Every function is pure: it takes the slices it filters, never retains them,
// and returns freshly allocated results. Callers provide consistency (the
// storage package calls these while holding its lock).
package query

import (
	"sort"
	"strings"

	"shadiflow/internal/core"
)

// GroupExists reports whether any group carries groupID.
func GroupExists(groups []core.Group, groupID string) bool {
	for _, g := range groups {
		if g.GroupID == groupID {
			return true
		}
	}
	return false
}

// MembersOf returns the members of groupID in join order.
func MembersOf(members []core.Member, groupID string) []core.Member {
	var out []core.Member
	for _, m := range members {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out
}

// FindMember returns the first member of groupID named username.
func FindMember(members []core.Member, groupID, username string) (core.Member, bool) {
	for _, m := range members {
		if m.GroupID == groupID && m.Username == username {
			return m, true
		}
	}
	return core.Member{}, false
}

// NextUserID returns max(user id in groupID)+1, or 1 for an empty group.
func NextUserID(members []core.Member, groupID string) int {
	last := 0
	for _, m := range members {
		if m.GroupID == groupID && m.UserID > last {
			last = m.UserID
		}
	}
	return last + 1
}

// Usernames projects members to their names, preserving order.
func Usernames(members []core.Member) []string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Username
	}
	return names
}

// ForGroup returns the expenses of groupID in insertion order.
func ForGroup(expenses []core.Expense, groupID string) []core.Expense {
	return filter(expenses, func(e core.Expense) bool {
		return e.GroupID == groupID
	})
}

// ByUser returns the expenses recorded by username within groupID.
func ByUser(expenses []core.Expense, groupID, username string) []core.Expense {
	return filter(expenses, func(e core.Expense) bool {
		return e.GroupID == groupID && e.Username == username
	})
}

// ByCategory returns the expenses of groupID whose category contains
// category, compared case-insensitively.
func ByCategory(expenses []core.Expense, groupID, category string) []core.Expense {
	needle := strings.ToLower(category)
	return filter(expenses, func(e core.Expense) bool {
		return e.GroupID == groupID && strings.Contains(strings.ToLower(e.Category), needle)
	})
}

// Summarize sums and counts expenses.
func Summarize(expenses []core.Expense) core.Total {
	var t core.Total
	for _, e := range expenses {
		t.Total += e.Amount
		t.Count++
	}
	return t
}

// GroupBy partitions expenses by key and returns one bucket per distinct key,
// sorted by total descending. Ties keep the order in which keys first appear.
func GroupBy(expenses []core.Expense, key func(core.Expense) string) []core.Bucket {
	index := make(map[string]int)
	var buckets []core.Bucket
	for _, e := range expenses {
		k := key(e)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, core.Bucket{Key: k})
		}
		buckets[i].Total += e.Amount
		buckets[i].Count++
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Total > buckets[j].Total
	})
	return buckets
}

// CategoryBuckets groups expenses by exact category text.
func CategoryBuckets(expenses []core.Expense) []core.Bucket {
	return GroupBy(expenses, func(e core.Expense) string { return e.Category })
}

// MemberBuckets groups expenses by username.
func MemberBuckets(expenses []core.Expense) []core.Bucket {
	return GroupBy(expenses, func(e core.Expense) string { return e.Username })
}

func filter(expenses []core.Expense, keep func(core.Expense) bool) []core.Expense {
	var out []core.Expense
	for _, e := range expenses {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
