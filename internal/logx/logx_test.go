package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "claude-tools.log")

	Init(Config{Level: "info", Format: "json", File: logPath})
	defer Shutdown()

	Logger().Info("test_message", "key", "value")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}

	var record map[string]any
	if err := json.Unmarshal(data[:len(data)-1], &record); err != nil {
		t.Fatalf("failed to parse JSON line: %v", err)
	}
	if record["msg"] != "test_message" {
		t.Errorf("expected msg=test_message, got %v", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("expected key=value, got %v", record["key"])
	}
}

func TestForComponentTagsBeforeInit(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "claude-tools.log")

	// Component loggers are often created as package-level vars, before
	// Init runs. Confirm the dynamic handler still picks up the real
	// handler once Init is called.
	comp := ForComponent(CompQuery)
	Init(Config{Level: "debug", Format: "json", File: logPath})
	defer Shutdown()

	comp.Info("searched", "terms", 3)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data[:len(data)-1], &record); err != nil {
		t.Fatalf("failed to parse JSON line: %v", err)
	}
	if record["component"] != CompQuery {
		t.Errorf("expected component=%s, got %v", CompQuery, record["component"])
	}
}

func TestLoggerDefaultsBeforeInit(t *testing.T) {
	Shutdown()
	if l := Logger(); l == nil {
		t.Fatal("expected a non-nil default logger before Init")
	}
}
