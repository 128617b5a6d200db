package agent

import "testing"

func TestResolveRoleKeywordMatch(t *testing.T) {
	cases := map[string]string{
		"In Progress": "developer",
		"Doing":       "developer",
		"Code Review": "reviewer",
		"QA":          "tester",
		"Backlog":     "triager",
		"Planning":    "planner",
		"Blocked":     "unblocker",
		"Docs":        "documenter",
	}
	for column, wantRole := range cases {
		p, ok := ResolveRole(column)
		if !ok {
			t.Fatalf("column %q: expected a role match", column)
		}
		if p.Role != wantRole {
			t.Fatalf("column %q: got role %q, want %q", column, p.Role, wantRole)
		}
	}
}

func TestResolveRoleDoneHasNoMapping(t *testing.T) {
	if _, ok := ResolveRole("Done"); ok {
		t.Fatalf("expected no role mapped to a Done column")
	}
}

func TestResolveRoleUnknownColumn(t *testing.T) {
	if _, ok := ResolveRole("Icebox"); ok {
		t.Fatalf("expected no role mapped to an unrecognized column")
	}
}
