package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// SetupLogger tests
// ---------------------------------------------------------------------------

func TestSetupLogger_DoesNotPanicForAllCombinations(t *testing.T) {
	formats := []string{"json", "text", "JSON", "", "unknown"}
	levels := []string{"debug", "info", "warn", "warning", "error", "ERROR", "", "unknown"}

	for _, format := range formats {
		for _, level := range levels {
			t.Run(format+"/"+level, func(t *testing.T) {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("SetupLogger(%q, %q) panicked: %v", format, level, r)
					}
				}()
				SetupLogger(format, level)
			})
		}
	}
	SetupLogger("text", "error")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetLogLevel_ChangesActiveLevel(t *testing.T) {
	SetupLogger("text", "info")
	defer SetupLogger("text", "error")

	SetLogLevel("debug")
	if CurrentLogLevel() != slog.LevelDebug {
		t.Errorf("CurrentLogLevel() = %v, want debug", CurrentLogLevel())
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("default logger should accept debug records after SetLogLevel(debug)")
	}

	SetLogLevel("error")
	if slog.Default().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("default logger should drop warn records after SetLogLevel(error)")
	}
}

func TestJSONHandler_ProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("profile updated", "profile_id", "p-1")

	line := strings.TrimSpace(buf.String())
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, line)
	}
	if obj["msg"] != "profile updated" {
		t.Errorf("msg = %v, want profile updated", obj["msg"])
	}
	if obj["profile_id"] != "p-1" {
		t.Errorf("profile_id = %v, want p-1", obj["profile_id"])
	}
}
