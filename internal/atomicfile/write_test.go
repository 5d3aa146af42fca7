// write_test.go tests [Write] for content replacement, permissions, parent
// directory creation, and cleanup of temp files on failure.

package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// tempLeftovers returns the names of temp files Write may have left in dir.
func tempLeftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var left []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			left = append(left, e.Name())
		}
	}
	return left
}

func TestWrite_ReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	for _, content := range []string{"version = 1\n", "version = 1\n[log]\nlevel = \"debug\"\n"} {
		if err := Write(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(got) != content {
			t.Errorf("content = %q, want %q", got, content)
		}
	}
	if left := tempLeftovers(t, dir); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestWrite_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := Write(path, []byte("1:token"), 0o600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("permissions = %o, want 600", got)
	}
}

func TestWrite_CreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.toml")

	if err := Write(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Stat after Write: %v", err)
	}
}

func TestWrite_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	// A directory occupying the target name makes the final rename fail.
	path := filepath.Join(dir, "occupied")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "child"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Write(path, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error when target is a non-empty directory")
	}
	if left := tempLeftovers(t, dir); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}
