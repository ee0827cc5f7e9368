package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldline/trajet/internal/config"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `
db:
  driver: sqlite
  path: ` + filepath.Join(dir, "trajet.db") + `
backend:
  provider: mock
scheduler:
  cooldown: 1
  seed: 42
agents:
  - id: kestrel
    name: Kestrel
    lens: systems thinking
  - id: merlin
    name: Merlin
    lens: first principles
`
	path := filepath.Join(dir, "trajet.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCmdEndToEnd(t *testing.T) {
	configPath := writeTestConfig(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"run", "Is consensus a failure mode?", "--config", configPath, "--turns", "4"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("run command failed: %v\noutput:\n%s", err, buf.String())
	}

	out := buf.String()
	if !strings.Contains(out, "provocation: Is consensus a failure mode?") {
		t.Errorf("output missing provocation, got:\n%s", out)
	}
	for _, idx := range []string{"[0]", "[1]", "[2]", "[3]"} {
		if !strings.Contains(out, idx) {
			t.Errorf("output missing turn %s, got:\n%s", idx, out)
		}
	}
	if !strings.Contains(out, "Dominant basin:") {
		t.Errorf("output missing analysis summary, got:\n%s", out)
	}

	// The recorded session must be visible to the query commands.
	id := sessionIDFromOutput(t, out)

	listCmd := newRootCmd()
	listBuf := new(bytes.Buffer)
	listCmd.SetOut(listBuf)
	listCmd.SetArgs([]string{"sessions", "list", "--config", configPath})
	if err := listCmd.Execute(); err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(listBuf.String(), id) {
		t.Errorf("sessions list missing %s, got:\n%s", id, listBuf.String())
	}

	showCmd := newRootCmd()
	showBuf := new(bytes.Buffer)
	showCmd.SetOut(showBuf)
	showCmd.SetArgs([]string{"sessions", "show", id, "--config", configPath})
	if err := showCmd.Execute(); err != nil {
		t.Fatalf("sessions show failed: %v", err)
	}
	if !strings.Contains(showBuf.String(), "State:       complete") {
		t.Errorf("sessions show missing complete state, got:\n%s", showBuf.String())
	}

	analysisCmd := newRootCmd()
	analysisBuf := new(bytes.Buffer)
	analysisCmd.SetOut(analysisBuf)
	analysisCmd.SetArgs([]string{"sessions", "analysis", id, "--config", configPath})
	if err := analysisCmd.Execute(); err != nil {
		t.Fatalf("sessions analysis failed: %v", err)
	}
	if !strings.Contains(analysisBuf.String(), "Integrity:") {
		t.Errorf("sessions analysis missing integrity, got:\n%s", analysisBuf.String())
	}
}

func sessionIDFromOutput(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "session "); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no session id in output:\n%s", out)
	return ""
}

func TestDBMigrateCmd(t *testing.T) {
	configPath := writeTestConfig(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"db", "migrate", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("db migrate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Migrated") {
		t.Errorf("output = %q, want migration summary", buf.String())
	}
}

func TestBuildBackends(t *testing.T) {
	gen, emb, err := buildBackends(config.BackendConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("buildBackends(mock) error = %v", err)
	}
	if gen == nil || emb == nil {
		t.Error("mock backends should be non-nil")
	}

	if _, _, err := buildBackends(config.BackendConfig{Provider: "martian"}); err == nil {
		t.Error("buildBackends(martian) error = nil, want error")
	}
}

func TestSessionsListEmpty(t *testing.T) {
	configPath := writeTestConfig(t)

	migrate := newRootCmd()
	migrate.SetOut(new(bytes.Buffer))
	migrate.SetArgs([]string{"db", "migrate", "--config", configPath})
	if err := migrate.Execute(); err != nil {
		t.Fatalf("db migrate failed: %v", err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"sessions", "list", "--config", configPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions found.") {
		t.Errorf("output = %q, want empty-list message", buf.String())
	}
}
