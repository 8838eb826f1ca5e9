package agent

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"shadiflow/internal/core"
)

// Kind discriminates the actions the assistant can request.
type Kind int

const (
	KindNone Kind = iota
	KindCreateGroup
	KindJoinGroup
	KindAddExpense
	KindGetSummary
	// KindUnrecognized marks a fenced block that was not a valid action.
	KindUnrecognized
)

var kindTags = map[string]Kind{
	"create_group": KindCreateGroup,
	"join_group":   KindJoinGroup,
	"add_expense":  KindAddExpense,
	"get_summary":  KindGetSummary,
}

// String returns the wire tag, or "" for KindNone and KindUnrecognized.
func (k Kind) String() string {
	for tag, kind := range kindTags {
		if kind == k {
			return tag
		}
	}
	return ""
}

// SummaryType selects the get_summary projection.
type SummaryType string

const (
	SummaryOverall  SummaryType = "overall"
	SummaryPerson   SummaryType = "person"
	SummaryCategory SummaryType = "category"
	SummaryCustom   SummaryType = "custom"
)

// Action is the decoded request embedded in an assistant reply. Only the
// fields relevant to Kind are populated.
type Action struct {
	Kind Kind

	Username string
	GroupID  string

	ExpenseName string
	Amount      int64
	Category    string

	SummaryType SummaryType
	FilterValue string

	// Tag is the action name as written by the assistant.
	Tag string
}

var actionBlock = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\n?\\s*```")

type wireAction struct {
	Action      string          `json:"action"`
	Username    string          `json:"username"`
	GroupID     string          `json:"group_id"`
	ExpenseName string          `json:"expense_name"`
	Amount      json.RawMessage `json:"amount"`
	Category    string          `json:"category"`
	SummaryType string          `json:"summary_type"`
	FilterValue string          `json:"filter_value"`
}

// ParseAction extracts the first ```json block from text. It returns the
// decoded action and the text with every such block removed.
func ParseAction(text string) (Action, string) {
	display := strings.TrimSpace(actionBlock.ReplaceAllString(text, ""))

	m := actionBlock.FindStringSubmatch(text)
	if m == nil {
		return Action{Kind: KindNone}, display
	}

	var w wireAction
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &w); err != nil {
		return Action{Kind: KindUnrecognized}, display
	}
	kind, ok := kindTags[w.Action]
	if !ok {
		return Action{Kind: KindUnrecognized, Tag: w.Action}, display
	}

	a := Action{
		Kind:        kind,
		Tag:         w.Action,
		Username:    strings.TrimSpace(w.Username),
		GroupID:     strings.TrimSpace(w.GroupID),
		ExpenseName: strings.TrimSpace(w.ExpenseName),
		Amount:      decodeAmount(w.Amount),
		Category:    strings.TrimSpace(w.Category),
		SummaryType: SummaryType(strings.ToLower(strings.TrimSpace(w.SummaryType))),
		FilterValue: strings.TrimSpace(w.FilterValue),
	}
	if kind == KindAddExpense && a.Category == "" {
		a.Category = core.DefaultCategory
	}
	if kind == KindGetSummary && a.SummaryType == "" {
		a.SummaryType = SummaryOverall
	}
	return a, display
}

// decodeAmount accepts a JSON number or a string such as "5,000rs".
// Anything unparseable decodes to zero.
func decodeAmount(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	s := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return 0
		}
		s = unquoted
	}
	n, err := core.ParseAmount(s)
	if err != nil {
		return 0
	}
	return n
}
