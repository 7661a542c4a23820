// Package testutil holds small assertion helpers shared by package tests.
package testutil

import (
	"testing"

	appErr "ojassist/pkg/errors"
)

// AssertEqual checks if two values are equal
func AssertEqual(t testing.TB, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue checks if a condition is true
func AssertTrue(t testing.TB, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse checks if a condition is false
func AssertFalse(t testing.TB, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// MustNoError fails the test immediately on err.
func MustNoError(t testing.TB, err error, what string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", what, err)
	}
}

// AssertCode checks that err carries the given error code.
func AssertCode(t testing.TB, err error, want appErr.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code %d (%s), got nil", want, want.Message())
	}
	if got := appErr.GetCode(err); got != want {
		t.Fatalf("error code = %d (%v), want %d (%s)", got, err, want, want.Message())
	}
}
