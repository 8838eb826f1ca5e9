// Package storage owns the ledger records and their durable mirror.
//
// The Store keeps groups, members and expenses as three append-only slices
// behind a single mutex. Every mutation re-serializes the whole state into one
// JSON document and hands it to a Persister before the lock is released, so
// the lock bounds both consistency and write throughput.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shadiflow/internal/core"
	"shadiflow/internal/query"
)

// ErrGroupExists is returned when a group identifier is already taken.
var ErrGroupExists = errors.New("group already exists")

// ErrReadOnly is returned by mutations on a store opened with WithReadOnly.
var ErrReadOnly = errors.New("storage: store is read-only")

// Persister stores the serialized ledger document.
type Persister interface {
	// Load returns the last saved document, or nil when none exists.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored document.
	Save(ctx context.Context, doc []byte) error

	// Close releases any resources held by the persister.
	Close() error
}

// Quarantiner is implemented by persisters that can set an unreadable
// document aside so the next Save does not overwrite it.
type Quarantiner interface {
	Quarantine(ctx context.Context) (string, error)
}

type document struct {
	Groups   []core.Group   `json:"groups"`
	Members  []core.Member  `json:"members"`
	Expenses []core.Expense `json:"expenses"`
}

// Store is the in-process ledger. The zero value is not usable; use Open.
type Store struct {
	mu        sync.Mutex
	persister Persister
	now       func() time.Time
	logger    *slog.Logger
	onFlush   func(time.Duration, error)
	readOnly  bool

	groups   []core.Group
	members  []core.Member
	expenses []core.Expense
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for load and flush diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithFlushObserver registers a callback invoked after every flush attempt.
func WithFlushObserver(fn func(time.Duration, error)) Option {
	return func(s *Store) { s.onFlush = fn }
}

// WithReadOnly opens a snapshot that never writes to the persister: no
// quarantine on load, no final flush on Close, and mutations fail with
// ErrReadOnly. Another process may own the document meanwhile.
func WithReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// Open loads the ledger from p. A missing document yields an empty ledger.
// An unreadable or corrupt document also yields an empty ledger; it is
// logged and, when p supports it, quarantined before anything is written.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.New("storage: nil persister")
	}
	s := &Store{
		persister: p,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load(ctx)
	return s, nil
}

func (s *Store) load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.persister.Load(ctx)
	if err == nil && len(raw) == 0 {
		s.logger.InfoContext(ctx, "No ledger document found, starting empty")
		return
	}

	var doc document
	if err == nil {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Ledger document unreadable, starting empty", "error", err)
		if s.readOnly {
			return
		}
		if q, ok := s.persister.(Quarantiner); ok {
			where, qerr := q.Quarantine(ctx)
			if qerr != nil {
				s.logger.ErrorContext(ctx, "Failed to quarantine ledger document", "error", qerr)
			} else {
				s.logger.WarnContext(ctx, "Ledger document quarantined", "location", where)
			}
		}
		return
	}

	s.groups, s.members, s.expenses = doc.Groups, doc.Members, doc.Expenses
	s.logger.InfoContext(ctx, "Ledger loaded",
		"groups", len(s.groups),
		"members", len(s.members),
		"expenses", len(s.expenses))
}

// Close flushes the ledger one last time and releases the persister.
// A read-only store only releases the persister.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flushErr error
	if !s.readOnly {
		flushErr = s.flushLocked(ctx)
	}
	closeErr := s.persister.Close()
	if flushErr != nil {
		return fmt.Errorf("final flush: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close persister: %w", closeErr)
	}
	return nil
}

// CreateGroup records a group and its creator as member 1, persisting both
// in one flush.
func (s *Store) CreateGroup(ctx context.Context, groupID, creator string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query.GroupExists(s.groups, groupID) {
		return core.Group{}, fmt.Errorf("%w: %s", ErrGroupExists, groupID)
	}

	mark := s.markLocked()
	group := core.Group{
		GroupID:   groupID,
		CreatedBy: creator,
		CreatedAt: s.timestamp(),
	}
	s.groups = append(s.groups, group)
	s.addMemberLocked(groupID, creator)

	if err := s.flushLocked(ctx); err != nil {
		s.rollbackLocked(mark)
		return core.Group{}, err
	}
	return group, nil
}

// GroupExists reports whether groupID has been created.
func (s *Store) GroupExists(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.GroupExists(s.groups, groupID)
}

// Groups returns every group in creation order.
func (s *Store) Groups() []core.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Group(nil), s.groups...)
}

// AddMember appends a member with the next group-scoped user id. It does not
// check for an existing member of the same name.
func (s *Store) AddMember(ctx context.Context, groupID, username string) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark := s.markLocked()
	member := s.addMemberLocked(groupID, username)
	if err := s.flushLocked(ctx); err != nil {
		s.rollbackLocked(mark)
		return core.Member{}, err
	}
	return member, nil
}

// AddMemberIfAbsent performs the existence check and insert of AddMember in
// one critical section. It reports whether a member was created.
func (s *Store) AddMemberIfAbsent(ctx context.Context, groupID, username string) (core.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := query.FindMember(s.members, groupID, username); ok {
		return m, false, nil
	}
	mark := s.markLocked()
	member := s.addMemberLocked(groupID, username)
	if err := s.flushLocked(ctx); err != nil {
		s.rollbackLocked(mark)
		return core.Member{}, false, err
	}
	return member, true, nil
}

// MemberExists reports whether username belongs to groupID.
func (s *Store) MemberExists(groupID, username string) bool {
	_, ok := s.GetMember(groupID, username)
	return ok
}

// GetMember returns the member record for username in groupID.
func (s *Store) GetMember(groupID, username string) (core.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.FindMember(s.members, groupID, username)
}

// Members returns the members of groupID in join order.
func (s *Store) Members(groupID string) []core.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.MembersOf(s.members, groupID)
}

// AddExpense stamps and appends an expense. Referential checks belong to the
// caller.
func (s *Store) AddExpense(ctx context.Context, groupID string, userID int, username, name string, amount int64, category string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense := core.Expense{
		GroupID:     groupID,
		UserID:      userID,
		Username:    username,
		ExpenseName: name,
		Amount:      amount,
		Category:    category,
	}
	expense.Stamp(s.timestamp())

	mark := s.markLocked()
	s.expenses = append(s.expenses, expense)
	if err := s.flushLocked(ctx); err != nil {
		s.rollbackLocked(mark)
		return core.Expense{}, err
	}
	return expense, nil
}

// Expenses returns the expenses of groupID in insertion order.
func (s *Store) Expenses(groupID string) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.ForGroup(s.expenses, groupID)
}

// ExpensesByUser returns the expenses username recorded in groupID.
func (s *Store) ExpensesByUser(groupID, username string) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.ByUser(s.expenses, groupID, username)
}

// ExpensesByCategory matches category as a case-insensitive substring.
func (s *Store) ExpensesByCategory(groupID, category string) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.ByCategory(s.expenses, groupID, category)
}

// ExpenseSummary totals the expenses of groupID.
func (s *Store) ExpenseSummary(groupID string) core.Total {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.Summarize(query.ForGroup(s.expenses, groupID))
}

// CategorySummary buckets the expenses of groupID by category, largest first.
func (s *Store) CategorySummary(groupID string) []core.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.CategoryBuckets(query.ForGroup(s.expenses, groupID))
}

// MemberSummary buckets the expenses of groupID by username, largest first.
func (s *Store) MemberSummary(groupID string) []core.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.MemberBuckets(query.ForGroup(s.expenses, groupID))
}

func (s *Store) addMemberLocked(groupID, username string) core.Member {
	member := core.Member{
		GroupID:  groupID,
		UserID:   query.NextUserID(s.members, groupID),
		Username: username,
		JoinedAt: s.timestamp(),
	}
	s.members = append(s.members, member)
	return member
}

// timestamp drops the monotonic reading so records compare equal after a
// persist/load round trip.
func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

type mark struct{ groups, members, expenses int }

func (s *Store) markLocked() mark {
	return mark{len(s.groups), len(s.members), len(s.expenses)}
}

func (s *Store) rollbackLocked(m mark) {
	s.groups = s.groups[:m.groups]
	s.members = s.members[:m.members]
	s.expenses = s.expenses[:m.expenses]
}

func (s *Store) flushLocked(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	start := time.Now()
	err := s.writeLocked(ctx)
	if s.onFlush != nil {
		s.onFlush(time.Since(start), err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Ledger flush failed", "error", err)
	}
	return err
}

func (s *Store) writeLocked(ctx context.Context) error {
	doc := document{
		Groups:   nonNil(s.groups),
		Members:  nonNil(s.members),
		Expenses: nonNil(s.expenses),
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := s.persister.Save(ctx, raw); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
