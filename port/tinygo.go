//go:build tinygo

package port

import (
	"machine"
	"time"
)

// TinyGoPort is the baremetal Port: machine.Disable/EnableInterrupts
// mask real CPU interrupts and a machine.Timer drives the tick,
// mirroring the teacher's hal/tinygo_common.go split from its host
// counterpart.
type TinyGoPort struct {
	timer *machine.Timer
	rtc   RTCDriver
}

// NewTinyGoPort constructs a Port for baremetal targets. rtc may be nil,
// in which case RTCNow returns the zero time — boards without a
// battery-backed clock wire nothing here and accept that timestamps are
// only meaningful relative to boot.
func NewTinyGoPort(timer *machine.Timer, rtc RTCDriver) *TinyGoPort {
	return &TinyGoPort{timer: timer, rtc: rtc}
}

// IRQDisable masks all maskable interrupts, returning the previous mask.
func (p *TinyGoPort) IRQDisable() uint32 {
	return uint32(machine.DisableInterrupts())
}

// IRQRestore restores a mask previously returned by IRQDisable.
func (p *TinyGoPort) IRQRestore(mask uint32) {
	machine.EnableInterrupts(uintptr(mask))
}

// ContextSwitch is a no-op on this kernel's goroutine-gated scheduler;
// TinyGo still schedules each Thread's goroutine cooperatively the same
// way the host build does.
func (p *TinyGoPort) ContextSwitch(prev, next ThreadHandle) {}

// IsInISR is unused by this port; the kernel tracks ISR context itself.
func (p *TinyGoPort) IsInISR() bool { return false }

// TickInit arms the hardware timer at freqHz and invokes isr from the
// timer's own interrupt context on every period.
func (p *TinyGoPort) TickInit(freqHz uint32, isr func()) {
	period := time.Second / time.Duration(freqHz)
	p.timer.Configure(machine.TimerConfig{Period: uint64(period.Nanoseconds())})
	p.timer.Start(func() {
		isr()
	})
}

// RTCNow delegates to the configured RTCDriver, or returns the zero time
// if none was wired.
func (p *TinyGoPort) RTCNow() time.Time {
	if p.rtc == nil {
		return time.Time{}
	}
	return p.rtc.Now()
}
