package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"shadiflow/internal/amqp"
	"shadiflow/internal/core"
	"shadiflow/internal/storage"
)

// maxGroupIDAttempts bounds retries when a generated group id collides.
const maxGroupIDAttempts = 5

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found in group")
)

// EventPublisher hands ledger events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService orchestrates ledger mutations across the store and the
// event bus, and enforces the referential checks the store leaves to callers.
type LedgerService struct {
	store     *storage.Store
	publisher EventPublisher
	newID     func() string
	observe   func(eventType string, err error)
	logger    *slog.Logger
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithGroupIDFunc replaces the group id generator.
func WithGroupIDFunc(fn func() string) Option {
	return func(s *LedgerService) { s.newID = fn }
}

// WithLogger sets the logger for service diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

// WithEventObserver is called after every publish attempt.
func WithEventObserver(fn func(eventType string, err error)) Option {
	return func(s *LedgerService) { s.observe = fn }
}

// NewLedgerService wires a store and an optional publisher. A nil publisher
// disables event publication.
func NewLedgerService(store *storage.Store, publisher EventPublisher, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:     store,
		publisher: publisher,
		newID:     core.NewGroupID,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup creates a group with a fresh id and creator as its first member.
func (s *LedgerService) CreateGroup(ctx context.Context, creator string) (core.Group, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return core.Group{}, core.ErrEmptyUsername
	}

	for attempt := 1; attempt <= maxGroupIDAttempts; attempt++ {
		group, err := s.store.CreateGroup(ctx, s.newID(), creator)
		if errors.Is(err, storage.ErrGroupExists) {
			s.logger.WarnContext(ctx, "Generated group id collided, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return core.Group{}, fmt.Errorf("create group: %w", err)
		}

		s.publish(ctx, amqp.NewLedgerEvent(amqp.EventGroupCreated, group.GroupID, creator))
		s.logger.InfoContext(ctx, "Group created", "group_id", group.GroupID, "username", creator)
		return group, nil
	}
	return core.Group{}, fmt.Errorf("create group: no free id after %d attempts", maxGroupIDAttempts)
}

// JoinResult describes the outcome of JoinGroup.
type JoinResult struct {
	Member  core.Member
	Joined  bool
	Members []core.Member
}

// JoinGroup adds username to groupID unless already present. The group id is
// trimmed and upper-cased first.
func (s *LedgerService) JoinGroup(ctx context.Context, groupID, username string) (JoinResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return JoinResult{}, core.ErrEmptyUsername
	}
	groupID, err := core.NormalizeGroupID(groupID)
	if err != nil {
		return JoinResult{}, err
	}
	if !s.store.GroupExists(groupID) {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}

	member, created, err := s.store.AddMemberIfAbsent(ctx, groupID, username)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join group: %w", err)
	}
	if created {
		ev := amqp.NewLedgerEvent(amqp.EventMemberJoined, groupID, username)
		ev.UserID = member.UserID
		s.publish(ctx, ev)
		s.logger.InfoContext(ctx, "Member joined", "group_id", groupID, "username", username, "user_id", member.UserID)
	}

	return JoinResult{
		Member:  member,
		Joined:  created,
		Members: s.store.Members(groupID),
	}, nil
}

// AddExpense validates in, resolves the member and records the expense.
func (s *LedgerService) AddExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	in.GroupID = strings.TrimSpace(in.GroupID)
	in.Username = strings.TrimSpace(in.Username)
	in.ExpenseName = strings.TrimSpace(in.ExpenseName)
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	if !s.store.GroupExists(in.GroupID) {
		return core.Expense{}, fmt.Errorf("%w: %s", ErrGroupNotFound, in.GroupID)
	}
	member, ok := s.store.GetMember(in.GroupID, in.Username)
	if !ok {
		return core.Expense{}, fmt.Errorf("%w: %s", ErrMemberNotFound, in.Username)
	}

	expense, err := s.store.AddExpense(ctx, in.GroupID, member.UserID, member.Username,
		in.ExpenseName, in.Amount, core.NormalizeCategory(in.Category))
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, amqp.NewExpenseRecorded(expense))
	return expense, nil
}

func (s *LedgerService) GroupExists(groupID string) bool { return s.store.GroupExists(groupID) }

func (s *LedgerService) Members(groupID string) []core.Member { return s.store.Members(groupID) }

func (s *LedgerService) Expenses(groupID string) []core.Expense { return s.store.Expenses(groupID) }

func (s *LedgerService) ExpensesByUser(groupID, username string) []core.Expense {
	return s.store.ExpensesByUser(groupID, username)
}

func (s *LedgerService) ExpensesByCategory(groupID, category string) []core.Expense {
	return s.store.ExpensesByCategory(groupID, category)
}

func (s *LedgerService) Summary(groupID string) core.Total { return s.store.ExpenseSummary(groupID) }

func (s *LedgerService) CategorySummary(groupID string) []core.Bucket {
	return s.store.CategorySummary(groupID)
}

func (s *LedgerService) MemberSummary(groupID string) []core.Bucket {
	return s.store.MemberSummary(groupID)
}

// publish never fails the caller: the mutation is already persisted.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Event publisher not configured, skipping event", "type", ev.Type)
		return
	}
	err := s.publisher.Publish(ctx, ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"group_id", ev.GroupID,
			"error", err)
	}
	if s.observe != nil {
		s.observe(string(ev.Type), err)
	}
}

// Close flushes and closes the store, then the publisher if it holds a
// connection.
func (s *LedgerService) Close(ctx context.Context) error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if closer, ok := s.publisher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
