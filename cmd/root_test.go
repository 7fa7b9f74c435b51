package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/speechcapture/internal/config"
)

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	setupLogging(0, &buf)
	slog.Debug("hidden message")
	slog.Info("shown message", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("Expected debug output to be suppressed at level 0")
	}
	if !strings.Contains(out, "shown message") || !strings.Contains(out, "key=value") {
		t.Errorf("Expected text handler output, got %q", out)
	}

	buf.Reset()
	setupLogging(1, &buf)
	slog.Debug("debug message")
	if !strings.Contains(buf.String(), "debug message") {
		t.Error("Expected debug output at level 1")
	}
}

func TestNewLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "speechcapture.log")
	l := newLogFile(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 7})
	if l.MaxSize != 1 || l.MaxBackups != 2 || l.MaxAge != 7 {
		t.Errorf("Unexpected rotation settings %+v", l)
	}

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	setupLogging(0, l)
	slog.Info("Recording started", "path", "/tmp/a.wav")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "Recording started") {
		t.Errorf("Expected log line in file, got %q", data)
	}
}
