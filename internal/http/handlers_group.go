package http

import (
	"errors"
	"net/http"

	"shadiflow/internal/core"
	"shadiflow/internal/log"
	"shadiflow/internal/services"
)

type createGroupRequest struct {
	Username string `json:"username"`
}

type joinGroupRequest struct {
	GroupID  string `json:"group_id"`
	Username string `json:"username"`
}

type groupResponse struct {
	GroupID  string `json:"group_id"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	group, err := s.ledger.CreateGroup(ctx, sanitizeInput(req.Username))
	if errors.Is(err, core.ErrEmptyUsername) {
		UnprocessableEntityError("username is required").Write(w)
		return
	}
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Create group failed", log.NewFields().WithError(err)...)
		InternalServerError("failed to create group").Write(w)
		return
	}

	NewJSONResponse().Body(groupResponse{GroupID: group.GroupID, Username: group.CreatedBy}).Write(w)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req joinGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	res, err := s.ledger.JoinGroup(ctx, req.GroupID, sanitizeInput(req.Username))
	switch {
	case errors.Is(err, core.ErrInvalidGroupID):
		BadRequestError("Group ID must be 9 characters").Write(w)
		return
	case errors.Is(err, services.ErrGroupNotFound):
		NotFoundError("Invalid Group ID. Please check and try again.").Write(w)
		return
	case errors.Is(err, core.ErrEmptyUsername):
		UnprocessableEntityError("username is required").Write(w)
		return
	case err != nil:
		log.FromContext(ctx).ErrorContext(ctx, "Join group failed",
			log.NewFields().WithGroup(req.GroupID, req.Username).WithError(err)...)
		InternalServerError("failed to join group").Write(w)
		return
	}

	message := "Joined successfully"
	if !res.Joined {
		message = "Already a member"
	}
	NewJSONResponse().Body(groupResponse{
		GroupID:  res.Member.GroupID,
		Username: res.Member.Username,
		Message:  message,
	}).Write(w)
}

func (s *Server) handleGroupExists(w http.ResponseWriter, r *http.Request) {
	groupID := pathGroupID(r)
	NewJSONResponse().Body(map[string]any{
		"exists":   s.ledger.GroupExists(groupID),
		"group_id": groupID,
	}).Write(w)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requireGroup(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(map[string]any{
		"group_id": groupID,
		"members":  nonNil(s.ledger.Members(groupID)),
	}).Write(w)
}

// requireGroup resolves the {group_id} wildcard and writes a 404 when the
// group is unknown.
func (s *Server) requireGroup(w http.ResponseWriter, r *http.Request) (string, bool) {
	groupID := pathGroupID(r)
	if !s.ledger.GroupExists(groupID) {
		NotFoundError("Group not found").Write(w)
		return "", false
	}
	return groupID, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
