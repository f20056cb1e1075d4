// Package testutil provides helpers shared by the package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds waits for goroutines that are expected to finish
// promptly.
const DefaultTimeout = 5 * time.Second

// WaitForChannel waits until ch is closed or receives, failing the test
// with msg after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
}

// Receive returns the next value from ch, failing the test after timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timed out waiting for value", "after %s", timeout)
		var zero T
		return zero
	}
}
