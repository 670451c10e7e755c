package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestNewWithOptions_JSON tests the default handler and level filtering
func TestNewWithOptions_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Writer: &buf})

	log.Info("dropped")
	log.Warn("kept", "poll_url", "https://example.test/op/1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["poll_url"] != "https://example.test/op/1" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

// TestNewWithOptions_Text tests the text handler
func TestNewWithOptions_Text(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "debug", Format: "TEXT", Writer: &buf})
	log.WithFields("operation", "rg/create").Debug("Polled operation", "status", "Running")

	out := buf.String()
	for _, want := range []string{"level=DEBUG", "operation=rg/create", "status=Running"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output %q should contain %q", out, want)
		}
	}
}

// TestParseLevel tests level name mapping
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
