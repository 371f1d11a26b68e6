package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loqalabs/quoteplay/internal/history"
)

func TestPromptTextTrimsInput(t *testing.T) {
	var prompt bytes.Buffer
	got, err := promptText(strings.NewReader("  Do or do not.  \n"), &prompt)
	if err != nil {
		t.Fatalf("promptText: %v", err)
	}
	if got != "Do or do not." {
		t.Fatalf("unexpected text %q", got)
	}
	if !strings.Contains(prompt.String(), "Enter a quote") {
		t.Fatalf("expected prompt, got %q", prompt.String())
	}
}

func TestPromptTextAcceptsMissingNewline(t *testing.T) {
	got, err := promptText(strings.NewReader("Hmm"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("promptText: %v", err)
	}
	if got != "Hmm" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("Luminous beings are we", 8); got != "Luminou…" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestPrintInvocations(t *testing.T) {
	var out bytes.Buffer
	runs := []history.Invocation{{
		ID:        "cs1abc",
		Text:      "Patience you must have",
		Outcome:   "spoken",
		Model:     "Yoda",
		CreatedAt: time.Unix(1700000000, 0),
	}}
	if err := printInvocations(&out, runs); err != nil {
		t.Fatalf("printInvocations: %v", err)
	}
	for _, want := range []string{"cs1abc", "Patience you must have", "Yoda", "spoken"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestOutcomeStyles(t *testing.T) {
	if !outcomeStyle("running").GetFaint() {
		t.Fatal("unfinished runs should render dimmed")
	}
	if outcomeStyle("running").GetForeground() == failStyle.GetForeground() {
		t.Fatal("unfinished runs must not use the failure colour")
	}
	if got := outcomeStyle("spoken").GetForeground(); got != lipgloss.Color("2") {
		t.Fatalf("unexpected spoken colour %v", got)
	}
	if got := outcomeStyle("failed").GetForeground(); got != lipgloss.Color("1") {
		t.Fatalf("unexpected failed colour %v", got)
	}
}

func TestPrintInvocationsAlignsColumns(t *testing.T) {
	var out bytes.Buffer
	runs := []history.Invocation{
		{ID: "cs1abc", Text: "Short", Outcome: "spoken", Model: "Yoda", CreatedAt: time.Unix(1700000000, 0)},
		{ID: "cs1abd", Text: "Longer quote here", Outcome: "running", Model: "Vader", CreatedAt: time.Unix(1700000100, 0)},
	}
	if err := printInvocations(&out, runs); err != nil {
		t.Fatalf("printInvocations: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines:\n%s", len(lines), out.String())
	}
	col := strings.Index(lines[0], "MODEL")
	for _, line := range lines[1:] {
		if col < 0 || col >= len(line) || line[col:col+1] == " " {
			t.Fatalf("model column misaligned at %d:\n%s", col, out.String())
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("unexpected output %q", out.String())
	}
}
