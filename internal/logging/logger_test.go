package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Debug("test_message_from_logging_test")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"test_message_from_logging_test"`) {
		t.Fatalf("log line missing, got %q", b)
	}
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "chatty")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if log.Core().Enabled(-1) {
		t.Fatalf("debug should be disabled at the fallback level")
	}
	if !log.Core().Enabled(0) {
		t.Fatalf("info should be enabled")
	}
}
