package kernel

import "sync/atomic"

// Semaphore is a counting (or, with maxCount 1, binary) semaphore per
// spec.md §4.7.
type Semaphore struct {
	k        *Kernel
	count    int32
	maxCount int32
	waiters  waitList

	// isrBusy guards Post against reentry: a second ISR-context Post
	// landing on this semaphore while an earlier one hasn't completed
	// returns ErrorISRRecursive. Checked with a CAS before k.mu is ever
	// taken, so a genuinely nested call can't deadlock on the
	// non-reentrant mutex.
	isrBusy atomic.Bool
}

// NewSemaphore constructs a semaphore with the given initial count and
// maxCount (1 for a binary semaphore).
func (k *Kernel) NewSemaphore(initial, maxCount int32) *Semaphore {
	return &Semaphore{k: k, count: initial, maxCount: maxCount}
}

// Post increments the counter, waking the highest-priority waiter if one
// exists (consuming the increment on its behalf). Exceeding maxCount
// returns EOVERFLOW without effect. Safe to call from ISR context.
func (s *Semaphore) Post() Result {
	if !s.isrBusy.CompareAndSwap(false, true) {
		return ErrorISRRecursive
	}
	defer s.isrBusy.Store(false)

	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()

	if waiter := s.waiters.peekHighest(); waiter != nil {
		s.waiters.popHighest()
		waiter.memberOf = nil
		k.wakeLocked(waiter, Ok)
		return Ok
	}
	if s.count >= s.maxCount {
		return EOVERFLOW
	}
	s.count++
	return Ok
}

// Wait decrements the counter when positive, else blocks self.
func (s *Semaphore) Wait(self *Thread) Result {
	return s.wait(self, true, 0)
}

// TryWait decrements the counter without blocking, returning EAGAIN if
// it is zero.
func (s *Semaphore) TryWait(self *Thread) Result {
	return s.wait(self, false, 0)
}

// TimedWait blocks self up to ticks, returning ETimedOut on expiry.
func (s *Semaphore) TimedWait(self *Thread, ticks uint64) Result {
	return s.wait(self, true, ticks)
}

func (s *Semaphore) wait(self *Thread, blocking bool, ticks uint64) Result {
	k := s.k
	if res := k.errISRGuard(); res != Ok {
		return res
	}
	k.mu.Lock()
	if s.count > 0 {
		s.count--
		k.mu.Unlock()
		return Ok
	}
	if !blocking {
		k.mu.Unlock()
		return EAGAIN
	}
	// Enqueue onto s.waiters before releasing k.mu: an ISR-context Post
	// running between this check and the enqueue would see no registered
	// waiter, consume nothing, and leave self parked for a wakeup that
	// already happened.
	return k.blockOnLocked(self, &s.waiters, ticks)
}
