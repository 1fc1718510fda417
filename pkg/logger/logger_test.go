package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleHandlerDisablesColourForNonTerminals(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(consoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Debug("hidden")
	log.Info("schedule executed", slog.Uint64("schedule_id", 7))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug output should be filtered: %q", out)
	}
	if !strings.Contains(out, "schedule executed") || !strings.Contains(out, "schedule_id=7") {
		t.Fatalf("unexpected console output: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colour codes must be disabled for non-terminals: %q", out)
	}
}

func TestBuildHandlerFormats(t *testing.T) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	for _, format := range []string{"", "json", "text", "console"} {
		handler, err := buildHandler(format, []string{"stderr"}, opts)
		if err != nil || handler == nil {
			t.Fatalf("buildHandler(%q) failed: %v", format, err)
		}
	}
}

func TestAuditWriterAppliesDefaults(t *testing.T) {
	if _, err := newAuditWriter(AuditConfig{Enabled: true}); err == nil {
		t.Fatalf("expected an error for an empty audit path")
	}

	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	w, err := newAuditWriter(AuditConfig{Enabled: true, Path: path, MaxBackups: 3, Compress: true})
	if err != nil {
		t.Fatalf("newAuditWriter: %v", err)
	}
	defer w.Close()
	if w.MaxSize != 100 || w.MaxBackups != 3 || w.MaxAge != 30 || !w.Compress {
		t.Fatalf("unexpected rotation settings: %+v", w)
	}

	log := slog.New(slog.NewJSONHandler(w, nil))
	log.Info("schedule cancelled", slog.Uint64("schedule_id", 3))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), `"schedule_id":3`) {
		t.Fatalf("unexpected audit contents: %q", data)
	}
}
