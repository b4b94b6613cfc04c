package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
)

func TestFromStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   fault.Kind
	}{
		{401, fault.Auth},
		{403, fault.Auth},
		{429, fault.Quota},
		{400, fault.Remote},
		{500, fault.Remote},
		{502, fault.Remote},
	}

	for _, tc := range cases {
		err := fault.FromStatus("avatar.create", tc.status, "")
		if err.Kind != tc.want {
			t.Fatalf("status %d: got kind %q want %q", tc.status, err.Kind, tc.want)
		}
	}
}

func TestKindOfWrappedError(t *testing.T) {
	inner := fault.New(fault.Quota, "dialogue.reply", "rate limited")
	wrapped := fmt.Errorf("turn failed: %w", inner)

	if got := fault.KindOf(wrapped); got != fault.Quota {
		t.Fatalf("got kind %q want %q", got, fault.Quota)
	}
	if !fault.Is(wrapped, fault.Quota) {
		t.Fatal("Is should see quota through the wrap")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := fault.KindOf(errors.New("boom")); got != fault.Remote {
		t.Fatalf("unclassified error should report remote, got %q", got)
	}
	if got := fault.KindOf(nil); got != "" {
		t.Fatalf("nil error should report empty kind, got %q", got)
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := fault.Wrap(fault.Remote, "speech.transcribe", errors.New("connection refused"))
	if got := err.Error(); got != "speech.transcribe: connection refused" {
		t.Fatalf("unexpected message: %q", got)
	}
}
