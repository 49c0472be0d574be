package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat(FormatJSON), WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Info(context.Background(), "computed",
		String("method", "secant"),
		Float64("irr", 0.1),
		Bool("cached", false),
		Duration("took", time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "computed" || entry["method"] != "secant" || entry["irr"] != 0.1 {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if src, _ := entry["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Fatalf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("SetLevelString: %v", err)
	}
	Get().Debug(ctx, "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug should be logged after SetLevelString, got %q", buf.String())
	}

	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	SetLevel(slog.LevelInfo)
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("worker").Info(context.Background(), "started", Int("id", 3))
	if !strings.Contains(buf.String(), "worker.id=3") {
		t.Fatalf("named logger should group fields, got %q", buf.String())
	}
}

func TestStandaloneLoggers(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(WithWriter(&buf), WithLevel(slog.LevelWarn))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info(context.Background(), "dropped")
	l.Warn(context.Background(), "kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	Nop().Error(context.Background(), "nothing")
}
