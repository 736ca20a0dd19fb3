//go:build !tinygo

package kernel

import "runtime/debug"

// captureStack records a Go stack trace for PanicInfo on host builds,
// where runtime/debug is available.
func captureStack() []byte {
	return debug.Stack()
}
