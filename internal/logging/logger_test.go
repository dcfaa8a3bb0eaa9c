package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(dir, "info", false)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	log.Info("test_message_from_logging_test")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "targetwatch.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output in file")
	}
}

func TestNewLogger_RejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(t.TempDir(), "loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
