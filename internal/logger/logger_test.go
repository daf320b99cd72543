package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_NoDirWritesStderrOnly(t *testing.T) {
	l, closer := New(FileConfig{}, slog.LevelInfo)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	defer func() { _ = closer.Close() }()
	l.Info("hello")
}

func TestNew_WithDirRotatesToFile(t *testing.T) {
	dir := t.TempDir()
	l, closer := New(FileConfig{Dir: dir}, slog.LevelInfo)
	l.Info("hello", "key", "value")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "server.log")); err != nil {
		t.Fatalf("server.log not created: %v", err)
	}
}

func TestFileConfig_RotatedWriterDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := FileConfig{Dir: dir}
	w := cfg.rotatedWriter()
	if w == nil {
		t.Fatal("expected non-nil writer")
	}
	_ = w.Close()
}

func TestColorTextHandler_DropsTimeWhenShowTimeFalse(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	slog.New(h).Info("hello")
	if strings.Contains(buf.String(), "time=") {
		t.Fatalf("expected no time attribute, got %q", buf.String())
	}
}

func TestColorTextHandler_RespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, true)
	slog.New(h).Info("hello")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("expected no ANSI escapes with NO_COLOR set, got %q", buf.String())
	}
}
