package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core))

	log.Info("payment settled", map[string]any{
		"network": "base-sepolia",
		"tx":      "0xabc",
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "payment settled" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("level = %s, want info", entry.Level)
	}

	fields := entry.ContextMap()
	if fields["network"] != "base-sepolia" {
		t.Errorf("network field = %v", fields["network"])
	}
	if fields["tx"] != "0xabc" {
		t.Errorf("tx field = %v", fields["tx"])
	}
}

func TestWrapRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := Wrap(zap.New(core))

	log.Debug("dropped", nil)
	log.Info("dropped", nil)
	log.Warn("kept", nil)
	log.Error("kept", nil)

	if got := logs.Len(); got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}
	for _, entry := range logs.All() {
		if entry.Message != "kept" {
			t.Errorf("unexpected entry %q at %s", entry.Message, entry.Level)
		}
	}
}

func TestNewZapLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "nonsense", ""} {
		log := NewZapLogger(level)
		if log == nil {
			t.Fatalf("NewZapLogger(%q) returned nil", level)
		}
		// Exercise every method; none may panic.
		log.Debug("ping", map[string]any{"level": level})
		log.Info("ping", nil)
		log.Warn("ping", nil)
		log.Error("ping", nil)
	}
}

func TestNoopLoggerDiscards(t *testing.T) {
	var log Logger = NoopLogger{}
	log.Debug("ignored", map[string]any{"k": "v"})
	log.Info("ignored", nil)
	log.Warn("ignored", nil)
	log.Error("ignored", nil)
}
