// Package port declares the external collaborators spec.md §6 leaves to
// an implementer — interrupt masking, the system tick source, context
// switch, and the real-time clock — and ships default implementations
// for both host development (port/host.go) and TinyGo firmware
// (port/tinygo.go), mirroring the teacher's hal package split between
// //go:build !tinygo and //go:build tinygo && baremetal.
package port

import "time"

// ThreadHandle is an opaque identifier a Port implementation can use to
// log or trace context switches. This kernel's baton-passing scheduler
// never needs ContextSwitch to do real register/stack work, so
// ThreadHandle carries only what a tracing port would want.
type ThreadHandle struct {
	ID   uint32
	Name string
}

// Port is the hardware seam a Kernel is built on top of.
type Port interface {
	// IRQDisable raises the interrupt mask to block all maskable
	// interrupts at or below the RTOS level, returning the previous
	// mask for IRQRestore.
	IRQDisable() uint32
	// IRQRestore restores a mask previously returned by IRQDisable.
	IRQRestore(mask uint32)
	// ContextSwitch notifies the port that the baton moved from prev to
	// next. A no-op on this kernel's goroutine-gated scheduler; kept so
	// a real trampoline-based port can override it.
	ContextSwitch(prev, next ThreadHandle)
	// IsInISR reports whether the port believes it is currently
	// executing interrupt context. The kernel tracks this itself
	// (Kernel.inISR) for the span of TickISR; ports layer their own
	// hardware-delivered interrupts on top by calling Kernel.TickISR (or
	// another ISR-context entry point) from within their own ISR, so
	// this mainly matters to a port's own bookkeeping, not the kernel's.
	IsInISR() bool
	// TickInit starts a periodic source at freqHz and arranges for isr
	// to be invoked once per period.
	TickInit(freqHz uint32, isr func())
	// RTCNow returns the current wall-clock time.
	RTCNow() time.Time
}
