package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kanbanhq/controlplane/pkg/types"
)

func TestLogsTailsMostRecentLines(t *testing.T) {
	dir := t.TempDir()
	a := &Adapter{logDir: dir}

	content := "line1\nline2\nline3\nline4\nline5\n"
	if err := os.WriteFile(filepath.Join(dir, "card-42.log"), []byte(content), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := a.Logs(nil, "card-42", 2)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "line4\nline5" {
		t.Fatalf("expected last 2 lines, got %q", out)
	}
}

func TestLogsMissingFileIsEmptyNotError(t *testing.T) {
	a := &Adapter{logDir: t.TempDir()}

	out, err := a.Logs(nil, "never-created", 10)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestToOCIMounts(t *testing.T) {
	mounts := []types.Mount{
		{Source: "/host/secrets", Target: "/run/secrets", ReadOnly: true},
		{Source: "/host/data", Target: "/data"},
	}

	oci := toOCIMounts(mounts)
	if len(oci) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(oci))
	}
	if oci[0].Options[0] != "ro" {
		t.Fatalf("expected read-only mount to lead with ro option, got %v", oci[0].Options)
	}
	if oci[1].Options[0] != "rbind" {
		t.Fatalf("expected writable mount to skip ro option, got %v", oci[1].Options)
	}
}
