package assistant

import (
	_ "embed"
	"fmt"
	"strings"
)

// SystemPrompt instructs the chat model on persona, workflows and the
// fenced JSON action format.
//
//go:embed system_prompt.md
var SystemPrompt string

// AnalystInstruction is the system instruction for custom summaries.
const AnalystInstruction = "You are a wedding expense analyst. Analyze the provided expense data and answer the user's query concisely. Only talk about wedding expenses. If the question is unrelated to wedding expenses, say 'I can't help with that.'"

const languageReminder = "\n\n[Reply in the SAME language as the user's message above: English → English, Roman Urdu → Roman Urdu.]"

// Context renders the bracketed session lines prepended to a user message.
// Blank fields are omitted; members are listed only with a group.
func Context(groupID string, members []string, username string) string {
	var lines []string
	if groupID != "" {
		lines = append(lines, fmt.Sprintf("[Current Group ID: %s]", groupID))
		if len(members) > 0 {
			lines = append(lines, fmt.Sprintf("[Group Members: %s]", strings.Join(members, ", ")))
		}
	}
	if username != "" {
		lines = append(lines, fmt.Sprintf("[Current Username: %s]", username))
	}
	return strings.Join(lines, "\n")
}

// ComposeTurn builds the current user turn from the session context and the
// raw message, ending with the language reminder.
func ComposeTurn(context, message string) string {
	turn := message
	if context != "" {
		turn = context + "\n\nUser message: " + message
	}
	return turn + languageReminder
}

// CustomSummaryPrompt asks the analyst to answer query over expensesJSON.
func CustomSummaryPrompt(query, expensesJSON string) string {
	return fmt.Sprintf("Based on the following expenses data, answer the user's query: '%s'\n\nExpenses data:\n%s", query, expensesJSON)
}
