package kernel

// MutexType selects relock-by-owner behavior.
type MutexType uint8

const (
	// MutexNormal deadlocks on a naive implementation; this kernel
	// instead detects self-relock and returns ErrorResource rather than
	// actually deadlocking (spec.md §9 Open Question, resolved this way).
	MutexNormal MutexType = iota
	// MutexErrorcheck detects self-relock and non-owner unlock, both
	// returning ErrorResource.
	MutexErrorcheck
	// MutexRecursive allows the owner to relock, incrementing count; N
	// locks require N unlocks.
	MutexRecursive
)

// MutexProtocol selects the priority-boosting behavior applied to a
// mutex's owner.
type MutexProtocol uint8

const (
	// MutexProtocolNone applies no boost.
	MutexProtocolNone MutexProtocol = iota
	// MutexProtocolInherit raises the owner's effective priority to that
	// of the highest-priority blocked waiter, reverted on unlock.
	MutexProtocolInherit
	// MutexProtocolProtect (priority ceiling) raises the owner's
	// effective priority to the mutex's configured ceiling for the
	// duration of ownership.
	MutexProtocolProtect
)

// MutexRobustness selects owner-death behavior.
type MutexRobustness uint8

const (
	// MutexStalled leaves a mutex permanently locked if its owner
	// terminates while holding it.
	MutexStalled MutexRobustness = iota
	// MutexRobust surfaces owner death as ErrorOS to the next acquirer,
	// who must call Consistent before normal use.
	MutexRobust
)

// maxInheritanceDepth bounds the priority-inheritance propagation walk
// (spec.md §9), so a cyclic wait among chained mutexes cannot make it
// spin. When the bound is reached the walk simply stops; the cycle is
// not detected as such and no error is reported to the caller.
const maxInheritanceDepth = 32

// MutexAttr configures Mutex construction.
type MutexAttr struct {
	Type        MutexType
	Protocol    MutexProtocol
	Robustness  MutexRobustness
	Ceiling     Priority // meaningful only when Protocol == MutexProtocolProtect
}

// Mutex is a lock with optional recursion, priority protocol, and
// owner-death robustness, per spec.md §4.6.
type Mutex struct {
	k *Kernel

	typ        MutexType
	protocol   MutexProtocol
	robustness MutexRobustness
	ceiling    Priority

	owner       *Thread
	count       uint32
	waiters     waitList
	inconsistent bool
}

// NewMutex constructs a mutex bound to k.
func (k *Kernel) NewMutex(attr MutexAttr) *Mutex {
	return &Mutex{
		k:          k,
		typ:        attr.Type,
		protocol:   attr.Protocol,
		robustness: attr.Robustness,
		ceiling:    attr.Ceiling,
	}
}

// Lock blocks self until m is acquired.
func (m *Mutex) Lock(self *Thread) Result {
	return m.acquire(self, true, 0)
}

// TryLock acquires m without blocking, returning EAGAIN if unavailable.
func (m *Mutex) TryLock(self *Thread) Result {
	return m.acquire(self, false, 0)
}

// TimedLock blocks self up to ticks, returning ETimedOut on expiry.
func (m *Mutex) TimedLock(self *Thread, ticks uint64) Result {
	return m.acquire(self, true, ticks)
}

func (m *Mutex) acquire(self *Thread, blocking bool, ticks uint64) Result {
	k := m.k
	if res := k.errISRGuard(); res != Ok {
		return res
	}
	k.mu.Lock()

	if m.protocol == MutexProtocolProtect && self.basePrio > m.ceiling {
		k.mu.Unlock()
		return ErrorPriority
	}

	if m.owner == nil {
		m.takeOwnershipLocked(self)
		inconsistent := m.robustness == MutexRobust && m.inconsistent
		k.mu.Unlock()
		if inconsistent {
			return ErrorOS
		}
		return Ok
	}

	if m.owner == self {
		switch m.typ {
		case MutexRecursive:
			m.count++
			k.mu.Unlock()
			return Ok
		case MutexErrorcheck, MutexNormal:
			k.mu.Unlock()
			return ErrorResource
		}
	}

	if !blocking {
		k.mu.Unlock()
		return EAGAIN
	}

	self.state = ThreadWaiting
	self.waitingOn = m
	k.enqueueWaitLocked(&m.waiters, self)
	m.applyInheritanceLocked()

	var timed bool
	if ticks > 0 {
		k.addTimedWaiterLocked(self, k.ticks+ticks)
		timed = true
	}

	next := k.dispatchLocked()
	k.mu.Unlock()
	if next != nil && next != self {
		next.gate <- struct{}{}
	}
	<-self.gate

	k.mu.Lock()
	reason := self.wakeReason
	if timed {
		k.removeTimedWaiterLocked(self)
	}
	k.mu.Unlock()

	if reason != Ok {
		return reason
	}
	// Woken by Unlock, which already transferred ownership to self.
	return m.postAcquireLocked()
}

// postAcquireLocked reports ErrorOS the first time a thread acquires a
// robust mutex left inconsistent by its dead owner.
func (m *Mutex) postAcquireLocked() Result {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	if m.robustness == MutexRobust && m.inconsistent {
		return ErrorOS
	}
	return Ok
}

func (m *Mutex) takeOwnershipLocked(t *Thread) {
	m.owner = t
	m.count = 1
	t.heldMutexes = append(t.heldMutexes, m)
	if m.protocol == MutexProtocolProtect {
		t.setDynamicPriorityLocked(maxPriority(t.basePrio, m.ceiling))
	}
}

// applyInheritanceLocked runs the bounded propagation walk: if m's
// highest waiter outranks its owner, raise the owner's priority (and, if
// the owner is itself blocked on another mutex, repeat from there).
// Terminates after maxInheritanceDepth hops, which can only be exhausted
// by a genuine cyclic-wait deadlock.
func (m *Mutex) applyInheritanceLocked() {
	if m.protocol != MutexProtocolInherit {
		return
	}
	cur := m
	for depth := 0; depth < maxInheritanceDepth; depth++ {
		if cur == nil || cur.owner == nil {
			return
		}
		waiter := cur.waiters.peekHighest()
		if waiter == nil || waiter.priority() <= cur.owner.priority() {
			return
		}
		cur.owner.setDynamicPriorityLocked(waiter.priority())
		if cur.owner.state != ThreadWaiting || cur.owner.waitingOn == nil {
			return
		}
		cur = cur.owner.waitingOn
	}
}

// Unlock releases m. On reaching count==0 it clears ownership, reverts
// any inheritance boost back to the caller's base priority (or the next
// ceiling in the caller's heldMutexes chain), and wakes the
// highest-priority waiter, transferring ownership to it directly.
func (m *Mutex) Unlock(self *Thread) Result {
	k := m.k
	if res := k.errISRGuard(); res != Ok {
		return res
	}
	k.mu.Lock()
	res := m.unlockLocked(self)
	k.mu.Unlock()
	return res
}

// unlockLocked is Unlock's body, assuming the caller already holds
// k.mu. Factored out so Cond.wait can release the associated mutex and
// enqueue itself on the condition's wait list within one unbroken
// critical section, matching the "atomically unlock and wait" contract
// spec.md §4.6 requires of Cond.Wait.
func (m *Mutex) unlockLocked(self *Thread) Result {
	k := m.k
	if m.owner != self {
		if m.typ == MutexErrorcheck || m.typ == MutexRecursive {
			return ErrorResource
		}
	}

	m.count--
	if m.count > 0 {
		return Ok
	}

	prevOwner := m.owner
	m.owner = nil
	m.removeHeldLocked(prevOwner)
	m.revertPriorityLocked(prevOwner)

	// Transfer ownership to the highest-priority waiter directly rather
	// than clearing m.owner and letting it race Lock() on some other
	// thread: the waiter is marked ready but, like every other wakeup
	// producer, does not receive the baton until its own next scheduling
	// point — see TickISR's doc comment for why.
	if waiter := m.waiters.popHighest(); waiter != nil {
		waiter.memberOf = nil
		waiter.waitingOn = nil
		m.takeOwnershipLocked(waiter)
		k.wakeLocked(waiter, Ok)
	}
	return Ok
}

func (m *Mutex) removeHeldLocked(t *Thread) {
	for i, cand := range t.heldMutexes {
		if cand == m {
			t.heldMutexes = append(t.heldMutexes[:i], t.heldMutexes[i+1:]...)
			return
		}
	}
}

// revertPriorityLocked drops t back to the highest priority still
// justified by its remaining held mutexes (their ceilings, or the
// highest waiter on any mutex it still holds under inherit), falling
// back to its own base priority.
func (m *Mutex) revertPriorityLocked(t *Thread) {
	p := t.basePrio
	for _, held := range t.heldMutexes {
		switch held.protocol {
		case MutexProtocolProtect:
			p = maxPriority(p, held.ceiling)
		case MutexProtocolInherit:
			if w := held.waiters.peekHighest(); w != nil {
				p = maxPriority(p, w.priority())
			}
		}
	}
	t.setDynamicPriorityLocked(p)
}

// Consistent clears the inconsistent flag on a robust mutex recovered
// after owner death. Returns ErrorResource if m is not inconsistent.
func (m *Mutex) Consistent(self *Thread) Result {
	if res := m.k.errISRGuard(); res != Ok {
		return res
	}
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	if m.owner != self {
		return ErrorResource
	}
	if !m.inconsistent {
		return ErrorResource
	}
	m.inconsistent = false
	return Ok
}

// onOwnerDiedLocked is called by Kernel.exitThread for every mutex the
// dying thread held. A stalled mutex is simply left locked forever (no
// further acquirer will ever succeed, matching spec.md's documented
// behavior); a robust mutex is marked inconsistent and handed to the
// next waiter, who will see ErrorOS from Lock/TryLock/TimedLock.
func (m *Mutex) onOwnerDiedLocked(t *Thread) {
	if m.robustness != MutexRobust {
		// Stalled: leave owner set so no one else can ever acquire it.
		return
	}
	m.owner = nil
	m.count = 0
	m.inconsistent = true
	if waiter := m.waiters.popHighest(); waiter != nil {
		waiter.memberOf = nil
		waiter.waitingOn = nil
		m.takeOwnershipLocked(waiter)
		m.k.wakeLocked(waiter, Ok)
	}
}

func maxPriority(a, b Priority) Priority {
	if a > b {
		return a
	}
	return b
}
