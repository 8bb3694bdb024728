package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, "config")

	err := Init(Config{
		Debug:     false,
		ConfigDir: configDir,
	})
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	logDir := filepath.Join(configDir, "logs")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Log directory was not created: %s", logDir)
	}

	if Logger == nil {
		t.Error("Logger is nil after initialization")
	}

	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
}

func TestInitWithOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Debug: true, Output: &buf}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	Debug("purchase recorded", "kid", "k1", "amount", -10)

	out := buf.String()
	if !strings.Contains(out, "purchase recorded") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "kid=k1") {
		t.Errorf("expected key/value pair in output, got %q", out)
	}
}

func TestWarnLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Debug: false, Output: &buf}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	Debug("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing from output, got %q", out)
	}
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// These should not panic when Logger is nil
	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
}
