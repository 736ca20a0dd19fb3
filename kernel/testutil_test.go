package kernel

import (
	"testing"
	"time"
)

const testTimeout = 1 * time.Second

// waitExit blocks for th to terminate and returns its exit value, failing
// the test if it takes longer than testTimeout.
func waitExit(t *testing.T, th *Thread) any {
	t.Helper()
	done := make(chan any, 1)
	go func() { done <- th.Wait() }()
	select {
	case v := <-done:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for thread exit")
		return nil
	}
}

// waitForState polls th.State() until it matches want, failing the test if
// testTimeout elapses first. Scenarios that need to observe a thread mid-
// block (priority inheritance, pending cancels) have no event to select on
// from outside the kernel's own goroutines, so polling is the only option.
func waitForState(t *testing.T, th *Thread, want ThreadState) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for {
		if got := th.State(); got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %v (last seen %v)", want, th.State())
		}
		time.Sleep(time.Millisecond)
	}
}
