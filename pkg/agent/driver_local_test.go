package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeCLI writes a tiny shell script that echoes two lines and exits
// successfully, standing in for the real LLM CLI.
func fakeCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-agent.sh")
	content := "#!/bin/sh\necho \"line one\"\necho \"line two\"\nexit 0\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return script
}

func TestLocalDriverStreamsOutput(t *testing.T) {
	d := NewLocalDriver(fakeCLI(t), "")
	var lines []string
	result, err := d.Run(context.Background(), "do the thing", t.TempDir(), ToolsDeveloper, func(line string) {
		lines = append(lines, line)
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Fatalf("unexpected streamed lines: %v", lines)
	}
}

func TestLocalDriverTimesOut(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-agent.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatalf("write slow cli: %v", err)
	}
	d := NewLocalDriver(script, "")
	result, err := d.Run(context.Background(), "prompt", t.TempDir(), ToolsReadOnly, nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Success {
		t.Fatalf("expected timeout failure")
	}
}
