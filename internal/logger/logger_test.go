package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigureOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	ConfigureOutput(&buf, "debug", "json")
	defer ConfigureOutput(os.Stdout, "info", "text")

	ctx := WithRequestID(context.Background(), "abc123")
	FromContext(ctx, "api").Debug("hello")

	out := buf.String()
	for _, want := range []string{`"app":"connstatus"`, `"component":"api"`, `"request_id":"abc123"`, `"msg":"hello"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("日志输出缺少 %s: %s", want, out)
		}
	}
}

func TestConfigureOutputFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	ConfigureOutput(&buf, "warn", "text")
	defer ConfigureOutput(os.Stdout, "info", "text")

	Info("heartbeat", "should be dropped")
	Warn("heartbeat", "kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Fatalf("warn 级别下不应输出 info 日志: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn 日志缺失: %s", out)
	}
}
