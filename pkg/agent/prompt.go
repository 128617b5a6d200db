package agent

import (
	"fmt"
	"strings"
)

// CardContext is the minimal slice of a card the orchestrator carries into
// a prompt: title, description, checklist, and recent comments. Defined
// locally rather than importing pkg/orchestrator to avoid a dependency
// cycle (orchestrator imports agent, not the other way around).
type CardContext struct {
	Title       string
	Description string
	ColumnName  string
	Checklist   []ChecklistItem
	Comments    []Comment
}

type ChecklistItem struct {
	Text      string
	Completed bool
}

type Comment struct {
	AuthorName string
	CreatedAt  string
	Text       string
}

// BuildPrompt materializes the prompt text an agent driver is run with,
// combining the card's content with the matched personality's system
// prompt.
func BuildPrompt(p Personality, card CardContext) string {
	var b strings.Builder

	b.WriteString(p.SystemPrompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Card: %s\n", card.Title)
	if card.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", card.Description)
	}

	if len(card.Checklist) > 0 {
		b.WriteString("\nChecklist:\n")
		for _, item := range card.Checklist {
			mark := " "
			if item.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, item.Text)
		}
	}

	if len(card.Comments) > 0 {
		b.WriteString("\nRecent comments:\n")
		for _, c := range card.Comments {
			fmt.Fprintf(&b, "[%s @ %s]: %s\n", c.AuthorName, c.CreatedAt, c.Text)
		}
	}

	return b.String()
}

// TruncateResult trims an agent's output to the ~2000 char ceiling the
// result comment is posted with.
func TruncateResult(output string) string {
	const limit = 2000
	if len(output) <= limit {
		return output
	}
	return output[:limit] + "\n... (truncated)"
}
