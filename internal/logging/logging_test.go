package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: WarnLevel, Output: &buf})

	logger.Debug("debug message", nil)
	logger.Info("info message", nil)
	logger.Warn("warn message", nil)
	logger.Error("error message", nil)

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("warn and error should be logged, got: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: DebugLevel, Output: &buf})

	logger.Info("cache hit", map[string]interface{}{"key": "abc123"})

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output should be valid JSON: %v", err)
	}
	if e.Level != "info" {
		t.Errorf("expected level info, got %q", e.Level)
	}
	if e.Message != "cache hit" {
		t.Errorf("expected message 'cache hit', got %q", e.Message)
	}
	if e.Fields["key"] != "abc123" {
		t.Errorf("expected field key=abc123, got %v", e.Fields["key"])
	}
}

func TestWithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: DebugLevel, Output: &buf})

	child := logger.With(map[string]interface{}{"component": "enhance"})
	child.Info("started", map[string]interface{}{"requestId": "r1"})

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Fields["component"] != "enhance" {
		t.Errorf("bound field missing, got %v", e.Fields)
	}
	if e.Fields["requestId"] != "r1" {
		t.Errorf("call field missing, got %v", e.Fields)
	}
}

func TestHumanFieldOrderStable(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: DebugLevel, Output: &buf})

	logger.Info("m", map[string]interface{}{"b": 2, "a": 1, "c": 3})

	out := buf.String()
	ai := strings.Index(out, "a=1")
	bi := strings.Index(out, "b=2")
	ci := strings.Index(out, "c=3")
	if ai < 0 || bi < 0 || ci < 0 || !(ai < bi && bi < ci) {
		t.Errorf("fields should appear in sorted order, got: %s", out)
	}
}
