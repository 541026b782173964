package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budwatch/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "budwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run(testContext(t), &out, []string{"-help"}); err != nil {
		t.Fatalf("run(-help) error = %v", err)
	}
	if !strings.Contains(out.String(), "history [N]") {
		t.Errorf("usage = %q, want history command listed", out.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(testContext(t), &bytes.Buffer{}, []string{"-nope"}); err == nil {
		t.Error("run(-nope) error = nil, want error")
	}
}

func TestRun_HistoryEmpty(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "data_dir: "+dataDir+"\nlog_level: error\n")

	var out bytes.Buffer
	if err := run(testContext(t), &out, []string{"-config", path, "history", "5"}); err != nil {
		t.Fatalf("run(history) error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "No sightings recorded." {
		t.Errorf("output = %q, want %q", got, "No sightings recorded.")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "history.db")); err != nil {
		t.Errorf("history.db not created: %v", err)
	}
}

func TestRun_HistoryBadLimit(t *testing.T) {
	path := writeConfig(t, "data_dir: "+t.TempDir()+"\n")
	if err := run(testContext(t), &bytes.Buffer{}, []string{"-config", path, "history", "zero"}); err == nil {
		t.Error("run(history zero) error = nil, want error")
	}
}

func TestLoadConfig_ExplicitMissing(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("loadConfig() error = nil, want error for missing explicit file")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "scanner:\n  backend: carrier-pigeon\n")
	if _, _, err := loadConfig(path); err == nil {
		t.Error("loadConfig() error = nil, want validation error")
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, "scanner:\n  backend: adapter\n  adapter: hci1\n")
	cfg, got, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Scanner.Backend != config.BackendAdapter || cfg.Scanner.Adapter != "hci1" {
		t.Errorf("scanner = %+v", cfg.Scanner)
	}
	if cfg.Scanner.RetryIntervalSec != 3 {
		t.Errorf("RetryIntervalSec = %d, want default 3", cfg.Scanner.RetryIntervalSec)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"text", "level=TRACE"},
		{"json", `"level":"TRACE"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, config.LevelTrace, tt.format)
			logger.Log(testContext(t), config.LevelTrace, "advertisement")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}

	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo, "text").Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug output at info level = %q, want empty", buf.String())
	}
}
