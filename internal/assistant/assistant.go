// Package assistant defines the text-in/text-out boundary to the language
// model and the prompt material sent across it.
package assistant

import (
	"context"
	"errors"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ParseRole maps a client-supplied role onto the two the model accepts.
// Anything other than "user" is treated as a model turn.
func ParseRole(s string) Role {
	if s == string(RoleUser) {
		return RoleUser
	}
	return RoleModel
}

// Turn is one prior message in the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is a single generation call.
type Request struct {
	System      string
	History     []Turn
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("assistant returned no text")

// Client generates a reply for a request.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
