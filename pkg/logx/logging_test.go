package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := FromZerolog(zerolog.New(&buf)).With(String("comp", "scheduler"))

	log.Info("pass finished", Int("enqueued", 2), Bool("ok", true))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "scheduler" {
		t.Fatalf("comp = %v, want scheduler", m["comp"])
	}
	if m["enqueued"] != float64(2) {
		t.Fatalf("enqueued = %v, want 2", m["enqueued"])
	}
	if m["message"] != "pass finished" {
		t.Fatalf("message = %v", m["message"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q, want logging_test.go:<line>", c)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Error("dropped") // must not panic
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
