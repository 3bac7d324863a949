package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "frames", "probe", "failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"frames", "probe", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestStepErrorLocatesFailure(t *testing.T) {
	cause := errors.New("ffmpeg exited 1")
	err := error(&services.StepError{
		Marker:    services.ErrDecodeFailure,
		TaskID:    7,
		Step:      2,
		Timestamp: 1706123460.5,
		Offset:    4.5,
		HasOffset: true,
		Err:       cause,
	})
	if !errors.Is(err, services.ErrDecodeFailure) {
		t.Fatal("expected marker match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause match")
	}
	msg := err.Error()
	for _, fragment := range []string{"task 7", "step 2", "1706123460.5", "4.500s", "ffmpeg exited 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in %q", fragment, msg)
		}
	}
	if services.Kind(err) != "DecodeFailure" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
	task, step, ok := services.StepOf(err)
	if !ok || task != 7 || step != 2 {
		t.Fatalf("unexpected location: %d %d %v", task, step, ok)
	}
}

func TestStepErrorWholeTaskOmitsStep(t *testing.T) {
	err := &services.StepError{Marker: services.ErrNotApproved, TaskID: 3, Step: services.NoStep}
	if strings.Contains(err.Error(), "step") {
		t.Fatalf("unexpected step in %q", err.Error())
	}
	if services.Kind(err) != "NotApproved" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
}

func TestKindMapping(t *testing.T) {
	cases := map[error]string{
		services.ErrMalformedEventLog: "MalformedEventLog",
		services.ErrNegativeOffset:    "NegativeOffset",
		services.ErrSeekOutOfRange:    "SeekOutOfRange",
		services.ErrUnknownTask:       "UnknownTask",
		services.ErrUnknownStep:       "UnknownStep",
		services.ErrPersistence:       "PersistenceFailure",
		errors.New("other"):           "ExternalTool",
	}
	for err, want := range cases {
		if got := services.Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q want %q", err, got, want)
		}
	}
}

func TestKnownKindIgnoresPlainErrors(t *testing.T) {
	if kind, ok := services.KnownKind(errors.New("invalid task id \"x\"")); ok || kind != "" {
		t.Fatalf("plain error reported kind %q", kind)
	}
	if kind, ok := services.KnownKind(nil); ok || kind != "" {
		t.Fatalf("nil reported kind %q", kind)
	}
	wrapped := services.Wrap(services.ErrExternalTool, "frames", "seek", "ffmpeg exited", errors.New("exit 1"))
	if kind, ok := services.KnownKind(wrapped); !ok || kind != "ExternalTool" {
		t.Fatalf("expected ExternalTool, got %q %v", kind, ok)
	}
	stepErr := &services.StepError{Marker: services.ErrUnknownStep, TaskID: 1, Step: 9}
	if kind, ok := services.KnownKind(stepErr); !ok || kind != "UnknownStep" {
		t.Fatalf("expected UnknownStep, got %q %v", kind, ok)
	}
}
