package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", false, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("resolved rpc", zap.String("network", "base-mainnet"))
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked: %s", out)
	}
	if !strings.Contains(out, `"network":"base-mainnet"`) {
		t.Fatalf("expected structured field, got %s", out)
	}
}

func TestNewPlainUsesConsoleEncoder(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", true, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Warn("fork disabled")
	_ = logger.Sync()
	if !strings.Contains(buf.String(), "WARN") || strings.Contains(buf.String(), "{\"") {
		t.Fatalf("expected console output, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zapcore.WarnLevel {
		t.Fatalf("expected warn default, got %v %v", lvl, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected unknown level error")
	}
	lvl, err := ParseLevel("off")
	if err != nil {
		t.Fatalf("ParseLevel off: %v", err)
	}
	core, logs := observer.New(lvl)
	zap.New(core).Error("dropped")
	if logs.Len() != 0 {
		t.Fatalf("expected off level to drop errors, got %d entries", logs.Len())
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("abcdefgh"); got != "abcd****" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if got := Redact("abc"); got != "****" {
		t.Fatalf("unexpected short redaction %q", got)
	}
}
