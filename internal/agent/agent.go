// Package agent turns a chat message into an assistant call, executes the
// action embedded in the reply against the ledger and assembles the text the
// user sees.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"shadiflow/internal/assistant"
	"shadiflow/internal/cache"
	"shadiflow/internal/core"
	"shadiflow/internal/metrics"
	"shadiflow/internal/query"
	"shadiflow/internal/services"
)

// Sentinel action tags reported when an action could not be carried out.
const (
	TagError        = "error"
	TagInvalidGroup = "invalid_group"
)

// Ledger is the subset of the ledger service the dispatcher drives.
type Ledger interface {
	CreateGroup(ctx context.Context, creator string) (core.Group, error)
	JoinGroup(ctx context.Context, groupID, username string) (services.JoinResult, error)
	AddExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	Members(groupID string) []core.Member
	Expenses(groupID string) []core.Expense
	ExpensesByUser(groupID, username string) []core.Expense
	ExpensesByCategory(groupID, category string) []core.Expense
}

// Config holds generation parameters.
type Config struct {
	Temperature      float64
	MaxTokens        int
	AnalystMaxTokens int
}

// DefaultConfig matches the tuning the prompts were written against.
func DefaultConfig() Config {
	return Config{Temperature: 0.3, MaxTokens: 2048, AnalystMaxTokens: 1024}
}

// ChatRequest is one user turn with its session context.
type ChatRequest struct {
	Message  string
	GroupID  string
	Username string
	History  []assistant.Turn
}

// ExpenseData echoes a recorded expense back to the client.
type ExpenseData struct {
	ExpenseName string `json:"expense_name"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
}

// Result is the dispatcher's answer. Action is a wire tag, a sentinel tag or
// empty when no action ran.
type Result struct {
	Reply    string
	Action   string
	GroupID  string
	Username string
	Expense  *ExpenseData
}

// Agent dispatches assistant actions. It holds no per-conversation state.
type Agent struct {
	ledger  Ledger
	llm     assistant.Client
	cfg     Config
	answers cache.Cache[string]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

func WithConfig(cfg Config) Option { return func(a *Agent) { a.cfg = cfg } }

// WithAnswerCache caches custom summary answers.
func WithAnswerCache(c cache.Cache[string]) Option { return func(a *Agent) { a.answers = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Agent) { a.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(a *Agent) { a.logger = l } }

func New(ledger Ledger, llm assistant.Client, opts ...Option) *Agent {
	a := &Agent{
		ledger: ledger,
		llm:    llm,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat runs one conversational turn. Only assistant transport failures and
// ledger persistence failures are returned as errors; everything else is
// reported through Result.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (Result, error) {
	req.GroupID = strings.TrimSpace(req.GroupID)
	req.Username = strings.TrimSpace(req.Username)

	var names []string
	if req.GroupID != "" {
		names = query.Usernames(a.ledger.Members(req.GroupID))
	}
	prompt := assistant.ComposeTurn(assistant.Context(req.GroupID, names, req.Username), req.Message)

	raw, err := a.generate(ctx, "chat", assistant.Request{
		System:      assistant.SystemPrompt,
		History:     req.History,
		Prompt:      prompt,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return Result{}, err
	}

	action, display := ParseAction(raw)
	res := Result{Reply: display, GroupID: req.GroupID, Username: req.Username}

	switch action.Kind {
	case KindNone:
		return res, nil
	case KindUnrecognized:
		a.logger.DebugContext(ctx, "Ignoring unrecognized action block", "tag", action.Tag)
		return res, nil
	}

	res.Action = action.Tag
	switch action.Kind {
	case KindCreateGroup:
		err = a.createGroup(ctx, action, display, &res)
	case KindJoinGroup:
		err = a.joinGroup(ctx, action, display, &res)
	case KindAddExpense:
		err = a.addExpense(ctx, req, action, &res)
	case KindGetSummary:
		err = a.summarize(ctx, req, action, display, &res)
	}
	a.metrics.ObserveAction(action.Tag, outcome(res.Action, err))
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (a *Agent) createGroup(ctx context.Context, action Action, display string, res *Result) error {
	creator := firstNonEmpty(action.Username, res.Username)
	if creator == "" {
		fail(res, TagError, replyNeedName)
		return nil
	}

	group, err := a.ledger.CreateGroup(ctx, creator)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	res.GroupID = group.GroupID
	res.Username = creator
	res.Reply = display + groupCreatedReply(group.GroupID)
	return nil
}

func (a *Agent) joinGroup(ctx context.Context, action Action, display string, res *Result) error {
	joiner := firstNonEmpty(action.Username, res.Username)
	if joiner == "" {
		fail(res, TagError, replyNeedName)
		return nil
	}

	joined, err := a.ledger.JoinGroup(ctx, action.GroupID, joiner)
	switch {
	case errors.Is(err, services.ErrGroupNotFound), errors.Is(err, core.ErrInvalidGroupID):
		fail(res, TagInvalidGroup, replyInvalidGroup)
		return nil
	case err != nil:
		return fmt.Errorf("join group: %w", err)
	}

	groupID := joined.Member.GroupID
	res.GroupID = groupID
	res.Username = joiner
	if !joined.Joined {
		res.Reply = alreadyMemberReply(joiner, groupID)
		return nil
	}
	res.Reply = display + welcomeReply(joiner, query.Usernames(joined.Members))
	return nil
}

func (a *Agent) addExpense(ctx context.Context, req ChatRequest, action Action, res *Result) error {
	if req.GroupID == "" || req.Username == "" {
		fail(res, TagError, replyJoinFirstExpense)
		return nil
	}

	expense, err := a.ledger.AddExpense(ctx, core.ExpenseInput{
		GroupID:     req.GroupID,
		Username:    req.Username,
		ExpenseName: action.ExpenseName,
		Amount:      action.Amount,
		Category:    action.Category,
	})
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		fail(res, TagError, replyInvalidAmount)
		return nil
	case errors.Is(err, core.ErrEmptyExpenseName):
		fail(res, TagError, replyMissingExpenseName)
		return nil
	case errors.Is(err, core.ErrNameTooLong):
		fail(res, TagError, replyExpenseNameTooLong)
		return nil
	case errors.Is(err, services.ErrGroupNotFound), errors.Is(err, services.ErrMemberNotFound):
		a.logger.WarnContext(ctx, "Expense not recorded for unknown member",
			"group_id", req.GroupID,
			"username", req.Username,
			"error", err)
		return nil
	case err != nil:
		return fmt.Errorf("add expense: %w", err)
	}

	res.Expense = &ExpenseData{
		ExpenseName: expense.ExpenseName,
		Amount:      expense.Amount,
		Category:    expense.Category,
	}
	return nil
}

func (a *Agent) summarize(ctx context.Context, req ChatRequest, action Action, display string, res *Result) error {
	if req.GroupID == "" {
		fail(res, TagError, replyJoinFirstSummary)
		return nil
	}

	switch action.SummaryType {
	case SummaryOverall:
		expenses := a.ledger.Expenses(req.GroupID)
		res.Reply = display + overallSummary(query.Summarize(expenses), expenses)
	case SummaryPerson:
		if action.FilterValue == "" {
			fail(res, TagError, replyNeedFilter)
			return nil
		}
		expenses := a.ledger.ExpensesByUser(req.GroupID, action.FilterValue)
		res.Reply = display + personSummary(action.FilterValue, query.Summarize(expenses), expenses)
	case SummaryCategory:
		if action.FilterValue == "" {
			fail(res, TagError, replyNeedFilter)
			return nil
		}
		expenses := a.ledger.ExpensesByCategory(req.GroupID, action.FilterValue)
		res.Reply = display + categorySummary(action.FilterValue, query.Summarize(expenses), expenses)
	case SummaryCustom:
		answer, ok, err := a.customSummary(ctx, req)
		if err != nil {
			return err
		}
		if ok {
			res.Reply = answer
		}
	default:
		a.logger.DebugContext(ctx, "Unknown summary type", "summary_type", action.SummaryType)
	}
	return nil
}

// customSummary asks the analyst about the group's expenses. It reports false
// when the group has nothing to analyse.
func (a *Agent) customSummary(ctx context.Context, req ChatRequest) (string, bool, error) {
	expenses := a.ledger.Expenses(req.GroupID)
	if len(expenses) == 0 {
		return "", false, nil
	}

	key := req.GroupID + "|" + strconv.Itoa(len(expenses)) + "|" + req.Message
	if a.answers != nil {
		cached, hit := a.answers.Get(key)
		a.metrics.ObserveCache(hit)
		if hit {
			return cached, true, nil
		}
	}

	data, err := json.Marshal(expenses)
	if err != nil {
		return "", false, fmt.Errorf("encode expenses: %w", err)
	}
	answer, err := a.generate(ctx, "analyst", assistant.Request{
		System:      assistant.AnalystInstruction,
		Prompt:      assistant.CustomSummaryPrompt(req.Message, string(data)),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.AnalystMaxTokens,
	})
	if err != nil {
		return "", false, err
	}

	if a.answers != nil {
		a.answers.Set(key, answer)
	}
	return answer, true, nil
}

func (a *Agent) generate(ctx context.Context, purpose string, req assistant.Request) (string, error) {
	start := time.Now()
	text, err := a.llm.Generate(ctx, req)
	a.metrics.ObserveAssistantCall(purpose, time.Since(start), err)
	if err != nil {
		a.logger.ErrorContext(ctx, "Assistant call failed", "purpose", purpose, "error", err)
		return "", fmt.Errorf("assistant %s call: %w", purpose, err)
	}
	return text, nil
}

func fail(res *Result, tag, reply string) {
	res.Action = tag
	res.Reply = reply
}

func outcome(tag string, err error) string {
	switch {
	case err != nil:
		return "failed"
	case tag == TagError || tag == TagInvalidGroup:
		return tag
	default:
		return "ok"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
