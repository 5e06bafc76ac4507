package localclient

import (
	"context"
	"testing"

	"github.com/vivyterm/vivyterm/internal/model"
)

func TestApplyPlaceholders(t *testing.T) {
	host := model.Host{
		ID:   9,
		Name: "edge-1",
		Host: "edge.internal",
		Port: 2022,
		User: "ops",
	}

	args := applyPlaceholders([]string{
		"-p", "{port}",
		"{user}@{host}",
		"", "  ",
		"session-{name}-{id}",
	}, host)

	want := []string{"-p", "2022", "ops@edge.internal", "session-edge-1-9"}
	if len(args) != len(want) {
		t.Fatalf("got %d args, want %d: %v", len(args), len(want), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: got %q, want %q", i, args[i], want[i])
		}
	}
}

func TestLooksLikeInteractivePrompt(t *testing.T) {
	s := &ProcessSession{}

	prompts := []string{
		"router#",
		"switch-01> ",
		"user@box:~$",
		"%",
	}
	for _, p := range prompts {
		if !s.looksLikeInteractivePrompt(p) {
			t.Fatalf("%q should look like a prompt", p)
		}
	}

	notPrompts := []string{
		"",
		"Username:",
		"Password: ",
		"Enter passphrase for key:",
		"Please enter your token",
		"Connecting to edge.internal...",
		"Disconnected from host",
		"plain output line",
	}
	for _, p := range notPrompts {
		if s.looksLikeInteractivePrompt(p) {
			t.Fatalf("%q should not look like a prompt", p)
		}
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	s := &ProcessSession{promptBuf: "line one\r\nline two\r\n\r\n  \r\n"}
	if got := s.lastNonEmptyLine(); got != "line two" {
		t.Fatalf("got %q", got)
	}

	s = &ProcessSession{promptBuf: "no newline yet"}
	if got := s.lastNonEmptyLine(); got != "no newline yet" {
		t.Fatalf("got %q", got)
	}

	s = &ProcessSession{}
	if got := s.lastNonEmptyLine(); got != "" {
		t.Fatalf("empty buffer should return empty, got %q", got)
	}
}

func TestStartRequiresLocalConfig(t *testing.T) {
	_, err := Start(context.Background(), model.Host{}, 80, 24)
	if err == nil {
		t.Fatal("expected error without local config")
	}

	_, err = Start(context.Background(), model.Host{Local: &model.LocalConfig{}}, 80, 24)
	if err == nil {
		t.Fatal("expected error for empty command path")
	}
}
