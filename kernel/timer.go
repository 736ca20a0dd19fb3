package kernel

import "sync/atomic"

// TimerMode selects one-shot vs periodic rearm behavior.
type TimerMode uint8

const (
	TimerOnce TimerMode = iota
	TimerPeriodic
)

// TimerState is a Timer's running/stopped status.
type TimerState uint8

const (
	TimerStopped TimerState = iota
	TimerRunning
)

// Timer is a software timer whose callback runs in tick-ISR context per
// spec.md §4.10. The specification's alternative design — a dedicated
// highest-priority timer thread — is not used here; callbacks must
// therefore be ISR-safe (no blocking, only Semaphore.Post, Cond.Signal/
// Broadcast, Queue.Put/Get with timeout 0, Timer.Start/Stop, and
// Thread.Wakeup).
type Timer struct {
	k *Kernel

	callback func(arg any)
	arg      any
	period   uint64
	mode     TimerMode
	state    TimerState
	expiry   uint64

	// firing is set for the duration of fire()'s callback invocation.
	// Start/Stop check it first: a callback that restarts or stops its
	// own timer is a second ISR-level call landing on this object before
	// the first (the dispatch itself) has completed, which spec.md §5's
	// recursion guard exists to reject rather than let corrupt
	// TickISR's due/remaining bookkeeping for this tick.
	firing atomic.Bool
}

// NewTimer constructs a stopped timer bound to k.
func (k *Kernel) NewTimer(mode TimerMode, callback func(arg any), arg any) *Timer {
	return &Timer{k: k, mode: mode, callback: callback, arg: arg}
}

// Start arms the timer to fire after ticks ticks. If mode is
// TimerPeriodic, ticks also becomes the rearm period. Starting an
// already-running timer restarts it from now.
func (t *Timer) Start(ticks uint64) Result {
	if t.firing.Load() {
		return ErrorISRRecursive
	}
	k := t.k
	k.mu.Lock()
	defer k.mu.Unlock()

	if t.state == TimerRunning {
		k.removeTimerLocked(t)
	}
	t.period = ticks
	t.expiry = k.ticks + ticks
	t.state = TimerRunning
	k.timers = append(k.timers, t)
	return Ok
}

// Stop disarms the timer. Returns EAGAIN if it was already stopped.
func (t *Timer) Stop() Result {
	if t.firing.Load() {
		return ErrorISRRecursive
	}
	k := t.k
	k.mu.Lock()
	defer k.mu.Unlock()

	if t.state != TimerRunning {
		return EAGAIN
	}
	k.removeTimerLocked(t)
	t.state = TimerStopped
	return Ok
}

// State reports whether the timer is currently armed.
func (t *Timer) State() TimerState {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

func (k *Kernel) removeTimerLocked(t *Timer) {
	for i, cand := range k.timers {
		if cand == t {
			k.timers = append(k.timers[:i], k.timers[i+1:]...)
			return
		}
	}
}

// dueTimersLocked removes and returns every timer whose expiry has
// arrived, rearming periodic ones in place. Called with k.mu held, from
// TickISR.
func (k *Kernel) dueTimersLocked(now uint64) []*Timer {
	var due []*Timer
	remaining := k.timers[:0]
	for _, t := range k.timers {
		if t.expiry > now {
			remaining = append(remaining, t)
			continue
		}
		due = append(due, t)
		if t.mode == TimerPeriodic {
			t.expiry = now + t.period
			remaining = append(remaining, t)
		} else {
			t.state = TimerStopped
		}
	}
	k.timers = remaining
	return due
}

// fire invokes the timer's callback. Called outside k.mu, matching every
// other ISR-safe entry point's convention of never holding the kernel
// lock across application code.
func (t *Timer) fire() {
	t.firing.Store(true)
	defer t.firing.Store(false)
	if t.callback != nil {
		t.callback(t.arg)
	}
}
