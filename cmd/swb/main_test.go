package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig points a config file at a database inside dir.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "switchboard.yaml")
	content := fmt.Sprintf("database:\n  path: %s\n", filepath.Join(dir, "switchboard.db"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// runCommand executes the root command with args and returns its output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "swb dev") {
		t.Errorf("output = %q", out)
	}
}

func TestParseMessageIDs(t *testing.T) {
	ids, err := parseMessageIDs([]string{"1", "42", "7"})
	if err != nil {
		t.Fatalf("parseMessageIDs: %v", err)
	}
	want := []uint{1, 42, 7}
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, id, want[i])
		}
	}

	if _, err := parseMessageIDs([]string{"abc"}); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := parseMessageIDs([]string{"-1"}); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestDBInitCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	out, err := runCommand(t, "db", "init", "--config", cfg)
	if err != nil {
		t.Fatalf("db init: %v", err)
	}
	if !strings.Contains(out, "initialized successfully") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "switchboard.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestAgentRegisterAndListCmds(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	if _, err := runCommand(t, "db", "init", "--config", cfg); err != nil {
		t.Fatalf("db init: %v", err)
	}

	out, err := runCommand(t, "agent", "register",
		"--config", cfg, "--project", "acme", "--name", "SalesBot", "--policy", "open")
	if err != nil {
		t.Fatalf("agent register: %v", err)
	}
	if !strings.Contains(out, "Registered SalesBot in acme") {
		t.Errorf("register output = %q", out)
	}

	out, err = runCommand(t, "agent", "list", "--config", cfg, "--project", "acme")
	if err != nil {
		t.Fatalf("agent list: %v", err)
	}
	if !strings.Contains(out, "SalesBot") {
		t.Errorf("list output = %q", out)
	}

	out, err = runCommand(t, "agent", "whois", "SalesBot", "--config", cfg, "--project", "acme")
	if err != nil {
		t.Fatalf("agent whois: %v", err)
	}
	if !strings.Contains(out, "Policy:  open") {
		t.Errorf("whois output = %q", out)
	}
}

func TestMessageSendAndInboxCmds(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	if _, err := runCommand(t, "db", "init", "--config", cfg); err != nil {
		t.Fatalf("db init: %v", err)
	}
	for _, name := range []string{"Alice", "Bob"} {
		if _, err := runCommand(t, "agent", "register",
			"--config", cfg, "--project", "acme", "--name", name, "--policy", "open"); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	out, err := runCommand(t, "message", "send",
		"--config", cfg, "--project", "acme", "--from", "Alice", "--to", "Bob",
		"--subject", "standup", "--body", "notes")
	if err != nil {
		t.Fatalf("message send: %v", err)
	}
	if !strings.Contains(out, "Sent message") {
		t.Errorf("send output = %q", out)
	}

	out, err = runCommand(t, "inbox", "--config", cfg, "--project", "acme", "--agent", "Bob")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if !strings.Contains(out, "standup") {
		t.Errorf("inbox output = %q", out)
	}
}

func TestDBResetCmd_AbortsWithoutConfirmation(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	if _, err := runCommand(t, "db", "init", "--config", cfg); err != nil {
		t.Fatalf("db init: %v", err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs([]string{"db", "reset", "--config", cfg})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("db reset: %v", err)
	}
	if !strings.Contains(out.String(), "Aborted.") {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "switchboard.db")); err != nil {
		t.Errorf("database was deleted despite abort: %v", err)
	}
}

func TestDBResetCmd_Yes(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	if _, err := runCommand(t, "db", "init", "--config", cfg); err != nil {
		t.Fatalf("db init: %v", err)
	}

	out, err := runCommand(t, "db", "reset", "--config", cfg, "--yes")
	if err != nil {
		t.Fatalf("db reset: %v", err)
	}
	if !strings.Contains(out, "re-initialized") {
		t.Errorf("output = %q", out)
	}
}
