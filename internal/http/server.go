// Package http serves the JSON API over the ledger and the chat dispatcher.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"shadiflow/internal/agent"
	"shadiflow/internal/core"
	"shadiflow/internal/log"
	"shadiflow/internal/metrics"
	"shadiflow/internal/middleware/ratelimit"
	"shadiflow/internal/middleware/security"
	"shadiflow/internal/middleware/trace"
	"shadiflow/internal/services"
)

// Ledger is the subset of the ledger service the handlers call.
type Ledger interface {
	CreateGroup(ctx context.Context, creator string) (core.Group, error)
	JoinGroup(ctx context.Context, groupID, username string) (services.JoinResult, error)
	AddExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	GroupExists(groupID string) bool
	Members(groupID string) []core.Member
	Expenses(groupID string) []core.Expense
	ExpensesByUser(groupID, username string) []core.Expense
	Summary(groupID string) core.Total
	CategorySummary(groupID string) []core.Bucket
	MemberSummary(groupID string) []core.Bucket
}

// Chatter answers a chat message.
type Chatter interface {
	Chat(ctx context.Context, req agent.ChatRequest) (agent.Result, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config holds the listener and middleware settings.
type Config struct {
	Addr               string
	CORSOrigins        []string
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	ledger  Ledger
	chat    Chatter
	metrics *metrics.Metrics
	logger  *log.Logger
	checks  map[string]ReadinessCheck
	started time.Time

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithLogger(l *log.Logger) Option { return func(s *Server) { s.logger = l } }

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, ledger Ledger, chat Chatter, opts ...Option) (*Server, error) {
	s := &Server{
		ledger:  ledger,
		chat:    chat,
		checks:  make(map[string]ReadinessCheck),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Config{Component: log.ComponentHTTP})
	}

	resolver, err := security.NewClientIPResolver(cfg.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerMinute = cfg.RateLimitPerMinute
	s.rateLimiter = ratelimit.NewLimiter(limits)

	mux := http.NewServeMux()
	s.handle(mux, "GET /{$}", s.handleIndex)
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handle(mux, "POST /api/chat", s.handleChat)
	s.handle(mux, "POST /api/group", s.handleCreateGroup)
	s.handle(mux, "POST /api/group/join", s.handleJoinGroup)
	s.handle(mux, "GET /api/group/{group_id}/exists", s.handleGroupExists)
	s.handle(mux, "GET /api/group/{group_id}/members", s.handleMembers)
	s.handle(mux, "POST /api/expense", s.handleAddExpense)
	s.handle(mux, "GET /api/group/{group_id}/expenses", s.handleExpenses)
	s.handle(mux, "GET /api/group/{group_id}/expenses/{username}", s.handleUserExpenses)
	s.handle(mux, "GET /api/group/{group_id}/summary", s.handleSummary)
	s.handle(mux, "GET /api/group/{group_id}/summary/categories", s.handleCategorySummary)
	s.handle(mux, "GET /api/group/{group_id}/summary/members", s.handleMemberSummary)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(resolver.ExtractClientIP, TooManyRequestsError)(handler)
	handler = security.CORS(cfg.CORSOrigins)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(s.logger, resolver.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Chat requests wait on the assistant.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// handle registers h under pattern and records per-route metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.ObserveHTTP(pattern, rec.status, time.Since(start))
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{
		"status":  "ok",
		"message": "Wedding Expense Tracker API is running 🎉",
	}).Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}
