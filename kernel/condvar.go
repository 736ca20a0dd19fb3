package kernel

import "sync/atomic"

// Cond is a condition variable: a wait list with no state of its own,
// per spec.md §3/§4.6. Every waiter is associated with exactly one mutex
// for the duration of its wait.
type Cond struct {
	k       *Kernel
	waiters waitList

	// isrBusy guards Signal/Broadcast against reentry: a second
	// ISR-context call landing on this condvar while an earlier one
	// hasn't completed returns ErrorISRRecursive. Checked with a CAS
	// before k.mu is ever taken, so a genuinely nested call can't
	// deadlock on the non-reentrant mutex.
	isrBusy atomic.Bool
}

// NewCond constructs a condition variable bound to k.
func (k *Kernel) NewCond() *Cond {
	return &Cond{k: k}
}

// Wait atomically unlocks m and blocks self on the condition, then
// reacquires m before returning. Spurious wakeups are permitted by this
// contract; callers must loop on their predicate.
func (c *Cond) Wait(self *Thread, m *Mutex) Result {
	return c.wait(self, m, 0)
}

// TimedWait is Wait with a deadline; returns ETimedOut on expiry. m is
// reacquired before returning in every case.
func (c *Cond) TimedWait(self *Thread, m *Mutex, ticks uint64) Result {
	return c.wait(self, m, ticks)
}

func (c *Cond) wait(self *Thread, m *Mutex, ticks uint64) Result {
	k := c.k
	if res := k.errISRGuard(); res != Ok {
		return res
	}

	// Unlocking m and enqueueing self on c.waiters happen under one
	// unbroken k.mu critical section: releasing k.mu in between would let
	// an ISR-context Signal/Broadcast land in the gap, find no registered
	// waiter, and leave self parked for a wakeup that already happened.
	k.mu.Lock()
	if res := m.unlockLocked(self); res != Ok {
		k.mu.Unlock()
		return res
	}
	res := k.blockOnLocked(self, &c.waiters, ticks)

	// Reacquire regardless of why we woke, matching pthread_cond_wait's
	// contract: the caller always re-enters holding the mutex.
	if lockRes := m.Lock(self); lockRes != Ok && res == Ok {
		res = lockRes
	}
	return res
}

// Signal wakes the highest-priority waiter, if any, marking it ready.
// Safe to call from ISR context. The woken thread does not receive the
// baton until its own next scheduling point (see TickISR's doc comment).
func (c *Cond) Signal() Result {
	if !c.isrBusy.CompareAndSwap(false, true) {
		return ErrorISRRecursive
	}
	defer c.isrBusy.Store(false)
	c.k.mu.Lock()
	c.k.wakeHighestLocked(&c.waiters, Ok)
	c.k.mu.Unlock()
	return Ok
}

// Broadcast wakes every waiter, marking each ready. Safe to call from
// ISR context.
func (c *Cond) Broadcast() Result {
	if !c.isrBusy.CompareAndSwap(false, true) {
		return ErrorISRRecursive
	}
	defer c.isrBusy.Store(false)
	c.k.mu.Lock()
	c.k.wakeAllLocked(&c.waiters, Ok)
	c.k.mu.Unlock()
	return Ok
}
