// Package tassert provides small fatal-assertion helpers for tests,
// grounded on the CheckFatal/Fatalf calling convention used throughout
// this codebase's test suites.
package tassert

import "testing"

// CheckFatal calls t.Fatalf if err is non-nil.
func CheckFatal(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

// Fatal calls t.Fatalf with msg if cond is false.
func Fatal(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatalf("%s", msg)
	}
}

// Errorf calls t.Errorf with the formatted message if cond is false,
// allowing the test to continue and report further failures.
func Errorf(t *testing.T, cond bool, format string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Errorf(format, args...)
	}
}
