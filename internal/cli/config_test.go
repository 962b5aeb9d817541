package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")

	if _, err := runRoot(t, "config", "init", "--output", path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := runRoot(t, "config", "init", "--output", path); err == nil {
		t.Error("expected error when the file exists without --force")
	}
	if _, err := runRoot(t, "config", "init", "--output", path, "--force"); err != nil {
		t.Errorf("--force: %v", err)
	}

	out, err := runRoot(t, "config", "validate", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "POST /login") {
		t.Errorf("unexpected output:\n%s", out)
	}

	// --config works as well as the argument.
	if _, err := runRoot(t, "--config", path, "config", "validate"); err != nil {
		t.Errorf("validate via --config: %v", err)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	bad := "limits:\n  - name: login\n    capacity: 0\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runRoot(t, "config", "validate", path); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := runRoot(t, "config", "validate"); err == nil {
		t.Fatal("expected error without a file")
	}
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	if _, err := runRoot(t, "simulate", "--requests", "1", "--log-level", "loud"); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}
