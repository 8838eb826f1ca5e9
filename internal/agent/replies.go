package agent

import (
	"fmt"
	"strings"

	"shadiflow/internal/core"
)

const (
	replyInvalidGroup       = "This Group ID is invalid. Please check and try again. ❌"
	replyJoinFirstExpense   = "Please join or create a group first before adding expenses."
	replyJoinFirstSummary   = "Please join or create a group first to view summaries."
	replyInvalidAmount      = "The expense amount must be greater than zero."
	replyMissingExpenseName = "Please tell me what the expense was for."
	replyExpenseNameTooLong = "That expense name is too long. Please keep it under 200 characters."
	replyNeedFilter         = "Please tell me which person or category you want the summary for."
	replyNeedName           = "Please tell me your name first."
)

func groupCreatedReply(groupID string) string {
	return fmt.Sprintf("\n\nYour Group ID is: **%s**\nShare this ID with other members so they can join! 🎊", groupID)
}

func alreadyMemberReply(username, groupID string) string {
	return fmt.Sprintf("%s is already a member of group %s. ✅", username, groupID)
}

func welcomeReply(username string, members []string) string {
	return fmt.Sprintf("\n\nWelcome to the group, %s! 🎉\nCurrent members: %s", username, strings.Join(members, ", "))
}

func overallSummary(total core.Total, expenses []core.Expense) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n📊 **Overall Summary**\nTotal Expenses: %d\nTotal Amount: %s\n", total.Count, core.FormatRupees(total.Total))
	if len(expenses) > 0 {
		b.WriteString("\nDetails:\n")
		for _, e := range expenses {
			fmt.Fprintf(&b, "• %s - %s (%s) by %s\n", e.ExpenseName, core.FormatRupees(e.Amount), e.Category, e.Username)
		}
	}
	return b.String()
}

func personSummary(person string, total core.Total, expenses []core.Expense) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n👤 **%s's Expenses**\nTotal: %s (%d expenses)\n", person, core.FormatRupees(total.Total), total.Count)
	for _, e := range expenses {
		fmt.Fprintf(&b, "• %s - %s (%s)\n", e.ExpenseName, core.FormatRupees(e.Amount), e.Category)
	}
	return b.String()
}

func categorySummary(category string, total core.Total, expenses []core.Expense) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n📁 **%s Expenses**\nTotal: %s (%d expenses)\n", category, core.FormatRupees(total.Total), total.Count)
	for _, e := range expenses {
		fmt.Fprintf(&b, "• %s - %s by %s\n", e.ExpenseName, core.FormatRupees(e.Amount), e.Username)
	}
	return b.String()
}
