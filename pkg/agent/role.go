// Package agent is the agent dispatch core: on a tenant's card-moved
// webhook, it maps the destination column to an agent personality,
// materializes a prompt, and runs one of three interchangeable subprocess
// drivers, streaming output back to the task's progress stream.
package agent

import (
	"strings"
	"time"
)

// ToolAllowList names the set of tools a driver invocation is permitted to
// use: a per-role allow-list of read-only, developer, or full-access.
type ToolAllowList string

const (
	ToolsReadOnly    ToolAllowList = "read-only"
	ToolsDeveloper   ToolAllowList = "developer"
	ToolsFullAccess  ToolAllowList = "full-access"
)

// Personality describes one agent role: its keyword-matched columns, its
// subprocess deadline, its tool allow-list, and the columns a card moves to
// on success or failure.
type Personality struct {
	Role           string
	Keywords       []string
	Timeout        time.Duration
	Tools          ToolAllowList
	SystemPrompt   string
	SuccessColumn  string
	FailureColumn  string
}

// Personalities is the fixed, hard-coded set of agent roles, checked in
// order so a column matching more than one role's keywords resolves to the
// first role in this list that matches (e.g. "Ready for Review" matches
// the planner's "ready" before the reviewer's "review").
var Personalities = []Personality{
	{
		Role:          "triager",
		Keywords:      []string{"backlog", "triage", "inbox", "new"},
		Timeout:       180 * time.Second,
		Tools:         ToolsReadOnly,
		SystemPrompt:  "You are triaging this card: assess its complexity, identify its type of work, flag missing information, and suggest labels and priority.",
		SuccessColumn: "Planning",
		FailureColumn: "Blocked",
	},
	{
		Role:          "planner",
		Keywords:      []string{"planning", "plan", "to do", "todo", "ready"},
		Timeout:       600 * time.Second,
		Tools:         ToolsReadOnly,
		SystemPrompt:  "You are breaking this card down into a concrete implementation plan and checklist.",
		SuccessColumn: "In Progress",
		FailureColumn: "Backlog",
	},
	{
		Role:          "developer",
		Keywords:      []string{"dev", "doing", "progress", "working", "development"},
		Timeout:       900 * time.Second,
		Tools:         ToolsDeveloper,
		SystemPrompt:  "You are a software engineer implementing the work described on this card. Make the change, run tests, and commit.",
		SuccessColumn: "Review",
		FailureColumn: "Blocked",
	},
	{
		Role:          "reviewer",
		Keywords:      []string{"review", "pr", "pull request", "code review"},
		Timeout:       300 * time.Second,
		Tools:         ToolsReadOnly,
		SystemPrompt:  "You are reviewing the implementation on this card for correctness and style. Do not modify files.",
		SuccessColumn: "Testing",
		FailureColumn: "In Progress",
	},
	{
		Role:          "tester",
		Keywords:      []string{"test", "qa", "quality", "verification"},
		Timeout:       600 * time.Second,
		Tools:         ToolsDeveloper,
		SystemPrompt:  "You are validating this implementation: run the existing test suite, exercise edge cases, check for regressions, and write new tests if coverage is lacking.",
		SuccessColumn: "Done",
		FailureColumn: "In Progress",
	},
	{
		Role:          "unblocker",
		Keywords:      []string{"blocked", "stuck", "impediment"},
		Timeout:       600 * time.Second,
		Tools:         ToolsFullAccess,
		SystemPrompt:  "You are investigating what's blocking this card, researching the root cause, and proposing a path forward.",
		SuccessColumn: "In Progress",
		FailureColumn: "Blocked",
	},
	{
		Role:          "documenter",
		Keywords:      []string{"docs", "documentation", "document"},
		Timeout:       300 * time.Second,
		Tools:         ToolsDeveloper,
		SystemPrompt:  "You are updating documentation to reflect what was implemented on this card: README, code comments, and usage examples.",
		SuccessColumn: "Done",
		FailureColumn: "In Progress",
	},
}

// ResolveRole fuzzy-matches columnName against each personality's keyword
// list, case-insensitively, and returns the first match. A column whose
// name contains "done" matches no personality by default: none of the built-in keyword lists include "done",
// so this falls out of the table rather than needing a special case.
func ResolveRole(columnName string) (Personality, bool) {
	lower := strings.ToLower(columnName)
	for _, p := range Personalities {
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				return p, true
			}
		}
	}
	return Personality{}, false
}
