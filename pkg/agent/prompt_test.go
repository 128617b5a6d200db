package agent

import "testing"

func TestBuildPromptIncludesCardContent(t *testing.T) {
	p := Personality{Role: "developer", SystemPrompt: "You are a developer."}
	card := CardContext{
		Title:       "Add retry logic",
		Description: "Retries should be idempotent.",
		Checklist:   []ChecklistItem{{Text: "write tests", Completed: false}},
		Comments:    []Comment{{AuthorName: "alice", CreatedAt: "2026-07-01", Text: "please keep it small"}},
	}
	prompt := BuildPrompt(p, card)

	for _, want := range []string{"Add retry logic", "Retries should be idempotent.", "write tests", "alice", "please keep it small"} {
		if !contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}
}

func TestTruncateResultShortPassesThrough(t *testing.T) {
	if got := TruncateResult("short output"); got != "short output" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestTruncateResultLongIsTruncated(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	got := TruncateResult(string(long))
	if len(got) >= 3000 {
		t.Fatalf("expected truncation, got length %d", len(got))
	}
	if !contains(got, "truncated") {
		t.Fatalf("expected truncation marker, got %q", got[len(got)-30:])
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
