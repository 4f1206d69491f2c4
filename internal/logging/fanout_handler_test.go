package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected the single live handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var console, file bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled through the file handler")
	}

	logger := slog.New(h)
	logger.Debug("poll tick")
	logger.Warn("slow provider")

	if bytes.Contains(console.Bytes(), []byte("poll tick")) {
		t.Fatalf("console should not receive debug: %q", console.String())
	}
	if !bytes.Contains(console.Bytes(), []byte("slow provider")) {
		t.Fatalf("console missing warn: %q", console.String())
	}
	for _, msg := range []string{"poll tick", "slow provider"} {
		if !bytes.Contains(file.Bytes(), []byte(msg)) {
			t.Fatalf("file missing %q: %q", msg, file.String())
		}
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))

	slog.New(h).With(slog.String(FieldJobID, "job-1")).WithGroup("synth").Info("submitted", slog.String("task", "t-9"))

	for _, buf := range []*bytes.Buffer{&a, &b} {
		out := buf.String()
		if !bytes.Contains(buf.Bytes(), []byte(`"job_id":"job-1"`)) || !bytes.Contains(buf.Bytes(), []byte(`"synth":{"task":"t-9"}`)) {
			t.Fatalf("missing attrs or group: %s", out)
		}
	}
}
