package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"storyforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("network reset"), false},
		{"transient", services.Wrap(services.ErrTransient, "synthesize", "poll", "503", nil), false},
		{"timeout", services.Wrap(services.ErrTimeout, "synthesize", "poll", "deadline", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "expand", "decode", "bad json", nil), true},
		{"not found", fmt.Errorf("load: %w", services.ErrNotFound), true},
		{"permanent", services.Wrap(services.ErrPermanent, "", "", "malformed payload", nil), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "upload", "", "no bucket", nil), true},
	}
	for _, tc := range cases {
		if got := services.IsPermanent(tc.err); got != tc.want {
			t.Fatalf("%s: IsPermanent = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDetailsClassification(t *testing.T) {
	details := services.Details(services.Wrap(services.ErrNotFound, "load", "segment", "missing", nil))
	if details.Kind != services.KindPermanent || details.Marker != "not_found" {
		t.Fatalf("unexpected details %+v", details)
	}
	details = services.Details(errors.New("eof"))
	if details.Kind != services.KindTransient || details.Hint == "" {
		t.Fatalf("unexpected details %+v", details)
	}
	if got := services.Details(nil); got.Kind != "" {
		t.Fatalf("expected empty details for nil, got %+v", got)
	}
}
