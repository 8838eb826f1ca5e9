package http

import (
	"errors"
	"net/http"
	"strings"

	"shadiflow/internal/core"
	"shadiflow/internal/log"
	"shadiflow/internal/query"
	"shadiflow/internal/services"
)

type addExpenseRequest struct {
	GroupID     string `json:"group_id"`
	Username    string `json:"username"`
	ExpenseName string `json:"expense_name"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
}

type expenseView struct {
	ExpenseName string `json:"expense_name"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type addExpenseResponse struct {
	Message string      `json:"message"`
	Expense expenseView `json:"expense"`
}

type categoryTotal struct {
	Category string `json:"category"`
	Total    int64  `json:"total"`
	Count    int    `json:"count"`
}

type memberTotal struct {
	Username string `json:"username"`
	Total    int64  `json:"total"`
	Count    int    `json:"count"`
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	expense, err := s.ledger.AddExpense(ctx, core.ExpenseInput{
		GroupID:     strings.ToUpper(sanitizeInput(req.GroupID)),
		Username:    sanitizeInput(req.Username),
		ExpenseName: sanitizeInput(req.ExpenseName),
		Amount:      req.Amount,
		Category:    sanitizeInput(req.Category),
	})
	switch {
	case errors.Is(err, services.ErrGroupNotFound):
		NotFoundError("Group not found").Write(w)
		return
	case errors.Is(err, services.ErrMemberNotFound):
		NotFoundError("Member not found in this group").Write(w)
		return
	case errors.Is(err, core.ErrInvalidAmount):
		UnprocessableEntityError("amount must be greater than zero").Write(w)
		return
	case errors.Is(err, core.ErrEmptyUsername), errors.Is(err, core.ErrEmptyExpenseName), errors.Is(err, core.ErrNameTooLong):
		UnprocessableEntityError(err.Error()).Write(w)
		return
	case err != nil:
		log.FromContext(ctx).ErrorContext(ctx, "Add expense failed",
			log.NewFields().WithGroup(req.GroupID, req.Username).WithError(err)...)
		InternalServerError("failed to save expense").Write(w)
		return
	}

	NewJSONResponse().Body(addExpenseResponse{
		Message: "Expense added successfully! ✅",
		Expense: expenseView{
			ExpenseName: expense.ExpenseName,
			Amount:      expense.Amount,
			Category:    expense.Category,
			Date:        expense.Date,
			Time:        expense.Time,
		},
	}).Write(w)
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requireGroup(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(map[string]any{
		"group_id": groupID,
		"expenses": nonNil(s.ledger.Expenses(groupID)),
	}).Write(w)
}

func (s *Server) handleUserExpenses(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requireGroup(w, r)
	if !ok {
		return
	}
	username := strings.TrimSpace(r.PathValue("username"))
	expenses := s.ledger.ExpensesByUser(groupID, username)
	total := query.Summarize(expenses)

	NewJSONResponse().Body(map[string]any{
		"group_id": groupID,
		"username": username,
		"expenses": nonNil(expenses),
		"total":    total.Total,
		"count":    total.Count,
	}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requireGroup(w, r)
	if !ok {
		return
	}
	total := s.ledger.Summary(groupID)
	NewJSONResponse().Body(map[string]any{
		"group_id": groupID,
		"total":    total.Total,
		"count":    total.Count,
	}).Write(w)
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requireGroup(w, r)
	if !ok {
		return
	}
	buckets := s.ledger.CategorySummary(groupID)
	categories := make([]categoryTotal, 0, len(buckets))
	for _, b := range buckets {
		categories = append(categories, categoryTotal{Category: b.Key, Total: b.Total, Count: b.Count})
	}
	NewJSONResponse().Body(map[string]any{
		"group_id":   groupID,
		"categories": categories,
	}).Write(w)
}

func (s *Server) handleMemberSummary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requireGroup(w, r)
	if !ok {
		return
	}
	buckets := s.ledger.MemberSummary(groupID)
	members := make([]memberTotal, 0, len(buckets))
	for _, b := range buckets {
		members = append(members, memberTotal{Username: b.Key, Total: b.Total, Count: b.Count})
	}
	NewJSONResponse().Body(map[string]any{
		"group_id": groupID,
		"members":  members,
	}).Write(w)
}
