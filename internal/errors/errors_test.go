package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestIsComparesCodes(t *testing.T) {
	sentinel := New(CodeNotFound, "schedule not found")
	err := fmt.Errorf("lookup: %w", New(CodeNotFound, "workflow not found"))
	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("unexpected match against a different code")
	}
}

func TestReasonJoinsWrappedMessages(t *testing.T) {
	inner := New(CodeInvalidArgument, "call to zero address")
	outer := Wrap(CodeConflict, inner, "operation 1 failed")
	if got := Reason(outer); got != "operation 1 failed: call to zero address" {
		t.Fatalf("unexpected reason: %q", got)
	}
	if got := Reason(stdErrors.New("boom")); got != "boom" {
		t.Fatalf("unexpected plain reason: %q", got)
	}
	if got := Reason(fmt.Errorf("ctx: %w", inner)); got != "call to zero address" {
		t.Fatalf("unexpected reason through fmt wrapping: %q", got)
	}
}

func TestKindFallsBackToInternal(t *testing.T) {
	if KindOf(stdErrors.New("plain")) != KindInternal {
		t.Fatalf("plain errors should be internal")
	}
	if KindOf(New(CodeUnauthorized, "")) != KindAuthorization {
		t.Fatalf("unauthorized should map to authorization kind")
	}
	if KindOf(New(Code("NEVER_REGISTERED"), "x")) != KindInternal {
		t.Fatalf("unregistered codes should fall back to unknown attributes")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	err := New(CodeStorageFailure, "", WithRetryable(false), WithAlert(false), WithSeverity(SeverityInfo), WithMetadata("table", "ledger_events"))
	if err.Message() != "storage failure" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if RetryableError(err) || ShouldAlert(err) || SeverityOf(err) != SeverityInfo {
		t.Fatalf("options did not override defaults: %+v", err)
	}
	if err.Metadata()["table"] != "ledger_events" {
		t.Fatalf("metadata missing")
	}
}
