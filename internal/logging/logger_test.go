package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	Logger = nil
	// Must not panic.
	Info("x")
	Debug("x")
	Warn("x")
	Error("x")
}

func TestSetOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, log.InfoLevel)
	defer func() { Logger = nil }()

	Debug("hidden message")
	Info("visible message", "feed", "home")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "feed=home") {
		t.Errorf("info line missing, got %q", out)
	}
}

func TestInitCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir, log.DebugLevel); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Close()
	Logger = nil

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "threadline-") {
		t.Errorf("unexpected log file name %q", entries[0].Name())
	}
}
