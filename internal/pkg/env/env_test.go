package env

import (
	"log/slog"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Setenv("LEDGER_TEST_VALUE", "set")
	if got := Get("LEDGER_TEST_VALUE", "default"); got != "set" {
		t.Errorf("expected set, got %q", got)
	}
	if got := Get("LEDGER_TEST_MISSING", "default"); got != "default" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("LEDGER_TEST_INTERVAL", "90m")
	got, err := GetDuration("LEDGER_TEST_INTERVAL", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 90*time.Minute {
		t.Errorf("expected 90m, got %v", got)
	}

	t.Setenv("LEDGER_TEST_INTERVAL", "soon")
	if _, err := GetDuration("LEDGER_TEST_INTERVAL", time.Hour); err == nil {
		t.Error("expected error for invalid duration")
	}

	got, err = GetDuration("LEDGER_TEST_UNSET", 2*time.Hour)
	if err != nil || got != 2*time.Hour {
		t.Errorf("expected default 2h, got %v (err %v)", got, err)
	}
}

func TestGetIntAndBool(t *testing.T) {
	t.Setenv("LEDGER_TEST_INT", "42")
	t.Setenv("LEDGER_TEST_BOOL", "true")

	n, err := GetInt("LEDGER_TEST_INT", 0)
	if err != nil || n != 42 {
		t.Errorf("expected 42, got %d (err %v)", n, err)
	}
	b, err := GetBool("LEDGER_TEST_BOOL", false)
	if err != nil || !b {
		t.Errorf("expected true, got %v (err %v)", b, err)
	}

	t.Setenv("LEDGER_TEST_INT", "forty")
	if _, err := GetInt("LEDGER_TEST_INT", 0); err == nil {
		t.Error("expected error for invalid int")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for raw, want := range tests {
		t.Setenv("LOG_LEVEL", raw)
		if got := ParseLogLevel(slog.LevelInfo); got != want {
			t.Errorf("LOG_LEVEL=%q: expected %v, got %v", raw, want, got)
		}
	}
}
