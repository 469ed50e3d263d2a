package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ogurasousui/codex-expense-approval/internal/platform/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info().Msg("hidden")
	logger.Warn().Str("expense_id", "exp-1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON line: %v", err)
	}
	if entry["message"] != "visible" || entry["expense_id"] != "exp-1" || entry["service"] != "expense-approval" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LogConfig{Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestNewWithWriter_InvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewWithWriter(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
