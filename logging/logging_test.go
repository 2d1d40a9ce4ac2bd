package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLoggerWritesDebugToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := SetupLogger(path, "error"); err != nil {
		t.Fatalf("SetupLogger failed: %v", err)
	}
	DebugLog("candidate %s skipped", "abc")
	With("cell", "17/1/2").Debug("grouped")
	CloseLogger()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "candidate abc skipped") {
		t.Errorf("debug message missing from log file:\n%s", out)
	}
	if !strings.Contains(out, "cell=17/1/2") {
		t.Errorf("attributes missing from log file:\n%s", out)
	}
}
