package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestWithFileFansOut(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "instance.log")

	log, closer, err := WithFile(&console, slog.LevelInfo, path)
	if err != nil {
		t.Fatalf("WithFile: %v", err)
	}

	log.Info("vm launched", "vmid", "abc123")
	log.Debug("qmp frame", "raw", "{}")

	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), "vm launched") {
		t.Errorf("console missing info record: %q", console.String())
	}
	if strings.Contains(console.String(), "qmp frame") {
		t.Errorf("console shows debug record despite info level")
	}

	file, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(file), "vm launched") || !strings.Contains(string(file), "qmp frame") {
		t.Errorf("file missing records: %q", file)
	}
}
