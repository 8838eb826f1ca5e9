package http

import (
	"net/http"
	"strings"

	"shadiflow/internal/agent"
	"shadiflow/internal/assistant"
	"shadiflow/internal/log"
)

type chatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatRequest struct {
	Message     string        `json:"message"`
	GroupID     string        `json:"group_id"`
	Username    string        `json:"username"`
	ChatHistory []chatMessage `json:"chat_history"`
}

type chatResponse struct {
	Reply       string             `json:"reply"`
	Action      *string            `json:"action"`
	GroupID     *string            `json:"group_id"`
	Username    *string            `json:"username"`
	ExpenseData *agent.ExpenseData `json:"expense_data"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	message := sanitizeInput(req.Message)
	if message == "" {
		UnprocessableEntityError("message is required").Write(w)
		return
	}

	history := make([]assistant.Turn, 0, len(req.ChatHistory))
	for _, m := range req.ChatHistory {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = string(assistant.RoleUser)
		}
		history = append(history, assistant.Turn{Role: assistant.ParseRole(role), Text: m.Text})
	}

	result, err := s.chat.Chat(ctx, agent.ChatRequest{
		Message:  message,
		GroupID:  sanitizeInput(req.GroupID),
		Username: sanitizeInput(req.Username),
		History:  history,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Chat failed",
			log.NewFields().WithGroup(req.GroupID, req.Username).WithError(err)...)
		InternalServerError(err.Error()).Write(w)
		return
	}

	NewJSONResponse().Body(chatResponse{
		Reply:       result.Reply,
		Action:      nullable(result.Action),
		GroupID:     nullable(result.GroupID),
		Username:    nullable(result.Username),
		ExpenseData: result.Expense,
	}).Write(w)
}

// nullable maps "" to JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
