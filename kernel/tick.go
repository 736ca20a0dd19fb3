package kernel

// Now returns the monotonic tick counter. It never blocks and is safe to
// call from ISR context.
func (k *Kernel) Now() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// ClockSample is a point-in-time read of the tick counter plus whatever
// sub-tick hardware down-counter state the caller has on hand, per
// spec.md §3's "clock current sample". The kernel itself has no
// down-counter register to read — that lives behind the port layer — so
// ClockSample takes the hardware fields as parameters rather than
// reaching for them itself.
type ClockSample struct {
	Ticks         uint64
	Cycles        uint32
	ReloadDivisor uint32
	CoreFreqHz    uint32
}

// Sample builds a ClockSample from the current tick count and the given
// hardware down-counter reading.
func (k *Kernel) Sample(cycles, reloadDivisor, coreFreqHz uint32) ClockSample {
	return ClockSample{
		Ticks:         k.Now(),
		Cycles:        cycles,
		ReloadDivisor: reloadDivisor,
		CoreFreqHz:    coreFreqHz,
	}
}

// TicksCast converts a microsecond duration to ticks at the given
// frequency, rounding up: ceil(microseconds * freqHz / 1e6), computed
// without floating point.
func TicksCast(microseconds uint64, freqHz uint32) uint64 {
	num := microseconds * uint64(freqHz)
	return (num + 999999) / 1000000
}

// SleepFor blocks self for the given number of ticks. It returns
// ETimedOut if the deadline elapsed naturally, or EINTR if the sleep was
// interrupted by Cancel or an explicit Wakeup. A zero duration returns
// immediately with Ok.
func (k *Kernel) SleepFor(self *Thread, ticks uint64) Result {
	if res := k.errISRGuard(); res != Ok {
		return res
	}
	if ticks == 0 {
		return Ok
	}
	return k.blockOn(self, &k.sleepers, ticks)
}

// addTimedWaiterLocked records that t must be woken no later than
// deadline, inserting in ascending-deadline order so TickISR only has to
// scan a prefix.
func (k *Kernel) addTimedWaiterLocked(t *Thread, deadline uint64) {
	t.deadline = deadline
	i := 0
	for ; i < len(k.timedWaiters); i++ {
		if k.timedWaiters[i].deadline > deadline {
			break
		}
	}
	k.timedWaiters = append(k.timedWaiters, nil)
	copy(k.timedWaiters[i+1:], k.timedWaiters[i:])
	k.timedWaiters[i] = t
}

func (k *Kernel) removeTimedWaiterLocked(t *Thread) {
	for i, cand := range k.timedWaiters {
		if cand == t {
			k.timedWaiters = append(k.timedWaiters[:i], k.timedWaiters[i+1:]...)
			return
		}
	}
}

// TickISR is the port layer's periodic callback (see port.Port.TickInit).
// It advances the tick counter, wakes every timed waiter whose deadline
// has arrived with reason ETimedOut, and fires due software timers in
// this same ISR context. TickISR itself makes IsInIRQ read true for the
// duration of the call, so callers (such as the isr a port's TickInit
// invokes) need not set anything.
//
// Newly-readied threads do not preempt immediately here — like every
// other ISR-safe wakeup producer (Semaphore.Post, Cond.Signal/Broadcast,
// Queue put/get), TickISR only marks threads ready. The baton itself
// only ever moves when a thread voluntarily relinquishes it (a blocking
// call, Yield, or termination), so the actual context switch to a
// higher-priority thread happens at that thread's own next scheduling
// point, not synchronously inside the interrupt.
func (k *Kernel) TickISR() {
	k.inISR.Store(true)
	defer k.inISR.Store(false)

	k.mu.Lock()
	k.ticks++
	now := k.ticks

	for len(k.timedWaiters) > 0 && k.timedWaiters[0].deadline <= now {
		t := k.timedWaiters[0]
		k.timedWaiters = k.timedWaiters[1:]
		if t.memberOf != nil {
			t.memberOf.remove(t)
			t.memberOf = nil
		}
		t.waitingOn = nil
		k.wakeLocked(t, ETimedOut)
	}

	due := k.dueTimersLocked(now)
	k.mu.Unlock()

	for _, tm := range due {
		tm.fire()
	}
}
