package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	prev := logger
	SetLogger(zap.New(core))
	t.Cleanup(func() { logger = prev })
	return logs
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	prev := logger
	defer func() { logger = prev }()

	if err := Initialize(Options{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	prev := logger
	defer func() { logger = prev }()

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !GetLogger().Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestInitialize_File(t *testing.T) {
	prev := logger
	defer func() { logger = prev }()

	path := filepath.Join(t.TempDir(), "batchpair.log")
	if err := Initialize(Options{Level: "info", File: path}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	Info("hello", zap.String("k", "v"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogAPICall(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	LogAPICall("step1", []string{"SN-0001", "SN-0002"}, 120*time.Millisecond, nil)
	LogAPICall("step2", []string{"SN-0001"}, time.Second, errors.New("boom"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["op"] != "step1" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if _, ok := entries[0].ContextMap()["serials"]; ok {
		t.Error("serials should only be logged at debug level")
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("failed call level = %v, want warn", entries[1].Level)
	}
}

func TestLogStepTransition(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	LogStepTransition("items-changed", "1/1", "1/2")

	got := logs.FilterMessage("Wizard state changed").All()
	if len(got) != 1 {
		t.Fatalf("got %d transition entries, want 1", len(got))
	}
	if got[0].ContextMap()["to"] != "1/2" {
		t.Errorf("to = %v, want 1/2", got[0].ContextMap()["to"])
	}
}
