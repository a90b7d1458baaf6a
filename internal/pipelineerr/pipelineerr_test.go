package pipelineerr

import (
	"errors"
	"testing"
)

func TestNewHasNoCause(t *testing.T) {
	err := New(Configuration, "bad format")
	if err.Cause != nil {
		t.Fatalf("expected nil cause, got %v", err.Cause)
	}
	if err.Kind != Configuration {
		t.Fatalf("expected Configuration kind, got %v", err.Kind)
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IO, "opening file", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find wrapped cause")
	}
	if got := errors.Unwrap(err); got != cause {
		t.Fatalf("expected unwrap to return cause, got %v", got)
	}
}

func TestErrorsAsDistinguishesKind(t *testing.T) {
	err := New(FormatViolation, "line count != 4")

	var target *Error
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to match *Error")
	}
	if target.Kind != FormatViolation {
		t.Fatalf("expected FormatViolation, got %v", target.Kind)
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		Configuration:   "configuration",
		IO:              "io",
		FormatViolation: "format_violation",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
