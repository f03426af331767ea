package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

// TestParseLevel verifies level names are case-insensitive and unknown names fall back to INFO
func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"Info", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"WARNING", LevelWarning, false},
		{"error", LevelError, false},
		{"FATAL", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

// TestSetLevelFromEnv verifies an invalid value selects the default level
func TestSetLevelFromEnv(t *testing.T) {
	defer SetLevel(GetLevel())

	t.Setenv("TEST_LOG_LEVEL", "debug")
	SetLevelFromEnv("TEST_LOG_LEVEL", LevelError)
	if GetLevel() != LevelDebug {
		t.Errorf("Expected DEBUG, got %v", GetLevel())
	}

	t.Setenv("TEST_LOG_LEVEL", "nonsense")
	SetLevelFromEnv("TEST_LOG_LEVEL", LevelError)
	if GetLevel() != LevelError {
		t.Errorf("Expected fallback ERROR, got %v", GetLevel())
	}
}

// TestWarnCountsAndWrites verifies warnings are counted and emitted as JSON
func TestWarnCountsAndWrites(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	before := TotalWarnings.Load()
	Warn("rule skipped", "rule_id", 7)

	if got := TotalWarnings.Load() - before; got != 1 {
		t.Errorf("Expected warning counter to advance by 1, got %d", got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "rule skipped" {
		t.Errorf("Expected msg 'rule skipped', got %v", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("Expected level WARN, got %v", entry["level"])
	}
	if entry["rule_id"] != float64(7) {
		t.Errorf("Expected rule_id 7, got %v", entry["rule_id"])
	}
}

// TestTraceLevelName verifies the custom levels are rendered by name
func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	prev := GetLevel()
	SetLevel(LevelTrace)
	defer SetLevel(prev)

	Trace("substituted", "expression", "1 > 0")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}
	if entry["level"] != "TRACE" {
		t.Errorf("Expected level TRACE, got %v", entry["level"])
	}
}

// TestWarnHttp4xx verifies per-status counters
func TestWarnHttp4xx(t *testing.T) {
	before400 := Total400Errors.Load()
	before409 := Total409Errors.Load()
	before4xx := Total4xxErrors.Load()

	WarnHttp4xx(400)
	WarnHttp4xx(409)
	WarnHttp4xx(422)

	if got := Total400Errors.Load() - before400; got != 1 {
		t.Errorf("Expected 1 new 400, got %d", got)
	}
	if got := Total409Errors.Load() - before409; got != 1 {
		t.Errorf("Expected 1 new 409, got %d", got)
	}
	if got := Total4xxErrors.Load() - before4xx; got != 3 {
		t.Errorf("Expected 3 new 4xx, got %d", got)
	}
}
