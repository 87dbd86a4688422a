package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: slog.LevelDebug},
		{name: "info level", input: "INFO", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "warn level", input: "WARN", expected: slog.LevelWarn},
		{name: "warning level", input: "WARNING", expected: slog.LevelWarn},
		{name: "error level", input: "ERROR", expected: slog.LevelError},
		{name: "case insensitive", input: "debug", expected: slog.LevelDebug},
		{name: "invalid level", input: "INVALID", expected: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", slog.LevelInfo))

	Component(logger, "cache").Info("evicted", "path", "/a/b")
	logger.Debug("suppressed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "cache" || entry["path"] != "/a/b" || entry["msg"] != "evicted" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "text", slog.LevelWarn))

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "storagemgr.log")
	logger, closer, err := NewLogger(LogConfig{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Debug("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestNewLogger_Rotates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	path := filepath.Join(dir, "storagemgr.log")
	logger, closer, err := NewLogger(LogConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer closer.Close()

	rotator, ok := closer.(*lumberjack.Logger)
	if !ok {
		t.Fatalf("closer is %T, want *lumberjack.Logger", closer)
	}
	if rotator.MaxSize != 1 || rotator.MaxBackups != 2 {
		t.Errorf("rotation settings not applied: %+v", rotator)
	}

	logger.Info("before rotation")
	if err := rotator.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	logger.Info("after rotation")

	backups, err := filepath.Glob(filepath.Join(dir, "storagemgr-*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 rotated file, got %v", backups)
	}
	old, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(old), "before rotation") {
		t.Errorf("rotated file = %q", old)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(current), "before rotation") || !strings.Contains(string(current), "after rotation") {
		t.Errorf("current file = %q, want only the post-rotation entry", current)
	}
}

func TestNewLogger_Stderr(t *testing.T) {
	_, closer, err := NewLogger(LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestComponent_NilLogger(t *testing.T) {
	if Component(nil, "x") == nil {
		t.Error("expected a logger derived from slog.Default")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
		{1099511627776, "1.0 TB"},
	}

	for _, tt := range tests {
		if result := FormatBytes(tt.input); result != tt.expected {
			t.Errorf("FormatBytes(%d) = %s, expected %s", tt.input, result, tt.expected)
		}
	}
}
