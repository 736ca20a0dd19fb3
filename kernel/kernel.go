package kernel

import (
	"sync"
	"sync/atomic"
)

// Kernel is the process-wide scheduler, time base, and primitive registry.
// Per spec.md §9's "Global kernel state" design note, production firmware
// keeps exactly one Kernel for the process lifetime; tests construct
// independent instances so they can run in parallel.
type Kernel struct {
	mu sync.Mutex

	started   bool
	lockDepth int
	needResch bool

	inISR atomic.Bool

	threads []*Thread
	nextID  uint32
	ready   waitList
	running *Thread
	idle    *Thread

	ticks        uint64
	sleepers     waitList  // holds threads parked in SleepFor
	timedWaiters []*Thread // ascending deadline order; mirrors every timed block, not just sleepers
	timers       []*Timer

	panicHandler func(PanicInfo)
	panicOnce    sync.Once
}

// New constructs an uninitialized Kernel. Call Start before creating
// threads that must run, or create threads first and Start afterward —
// both orders are supported, matching spec.md §4.4's "initializes to
// ready; enqueues for dispatch" contract.
func New() *Kernel {
	return &Kernel{}
}

// IsRunning reports whether Start has succeeded.
func (k *Kernel) IsRunning() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.started
}

// IsInIRQ reports whether the kernel is currently executing ISR-context
// code: TickISR sets this for the duration of its call, including the
// software-timer callbacks it fires.
func (k *Kernel) IsInIRQ() bool { return k.inISR.Load() }

// Start installs the idle thread and dispatches the highest-priority
// ready thread. Fails with ErrorOS if already running.
func (k *Kernel) Start() Result {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return ErrorOS
	}
	k.started = true

	idle, res := k.newThreadLocked(ThreadAttr{Name: "idle", Priority: PriorityIdle}, idleLoop, nil)
	if res != Ok {
		k.started = false
		k.mu.Unlock()
		return res
	}
	k.idle = idle

	next := k.dispatchLocked()
	k.mu.Unlock()
	if next != nil {
		next.gate <- struct{}{}
	}
	return Ok
}

func idleLoop(self *Thread, arg any) any {
	for {
		self.k.Yield(self)
	}
}

// Lock enters a nestable scheduler critical section: while locked,
// wakeups still reorder wait lists but no dispatch is performed. Returns
// the previous running status for symmetry with Unlock.
func (k *Kernel) Lock() (wasRunning bool) {
	k.mu.Lock()
	wasRunning = k.started
	k.lockDepth++
	k.mu.Unlock()
	return wasRunning
}

// Unlock leaves one level of scheduler critical section entered by self.
// When the depth reaches zero and a wakeup occurred while locked, it
// performs the deferred reschedule — self may itself be preempted here
// if a higher-priority thread became ready during the critical section,
// mirroring Yield.
func (k *Kernel) Unlock(self *Thread, prev bool) {
	k.mu.Lock()
	if k.lockDepth > 0 {
		k.lockDepth--
	}
	depth := k.lockDepth
	var next *Thread
	if depth == 0 && k.needResch {
		k.needResch = false
		self.state = ThreadReady
		k.ready.add(self)
		next = k.dispatchLocked()
	}
	k.mu.Unlock()
	if next == nil || next == self {
		return
	}
	next.gate <- struct{}{}
	<-self.gate
}

// Yield is an explicit scheduling point: self returns to ready and the
// scheduler dispatches the next highest-priority ready thread (which may
// be self again, if it remains highest priority).
func (k *Kernel) Yield(self *Thread) {
	k.mu.Lock()
	self.state = ThreadReady
	k.ready.add(self)
	next := k.dispatchLocked()
	k.mu.Unlock()
	if next != nil && next != self {
		next.gate <- struct{}{}
	}
	if next != self {
		<-self.gate
	}
}

// Current returns the thread the kernel believes is running, or nil
// before Start or from outside any thread's goroutine.
func (k *Kernel) Current() *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}

// newThreadLocked is NewThread's body, callable while k.mu is already
// held (Start uses it to install the idle thread).
func (k *Kernel) newThreadLocked(attr ThreadAttr, fn ThreadFunc, arg any) (*Thread, Result) {
	if fn == nil || !validPriority(attr.Priority) {
		return nil, ErrorParameter
	}
	k.nextID++
	t := &Thread{
		k:          k,
		id:         k.nextID,
		name:       attr.Name,
		entry:      fn,
		arg:        arg,
		basePrio:   attr.Priority,
		prio:       attr.Priority,
		state:      ThreadReady,
		stackBytes: attr.StackBytes,
		gate:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	k.threads = append(k.threads, t)
	k.ready.add(t)
	go t.run()
	return t, Ok
}

// dispatchLocked picks the highest-priority ready thread (falling back to
// idle, or nil before Start installs one) and marks it running. Callers
// must send to the returned thread's gate after releasing k.mu.
func (k *Kernel) dispatchLocked() *Thread {
	next := k.ready.popHighest()
	if next == nil {
		next = k.idle
		if next == nil {
			k.running = nil
			return nil
		}
		if next.state == ThreadReady {
			// idle is parked in ready only via re-adding itself in Yield;
			// if it's not there it's already running or waiting, neither
			// of which should happen, but guard anyway.
			k.ready.remove(next)
		}
	}
	k.running = next
	next.state = ThreadRunning
	return next
}

func (k *Kernel) requestReschedLocked() {
	if k.lockDepth > 0 {
		k.needResch = true
	}
}

// enqueueWaitLocked adds self to list and records membership so Cancel,
// Wakeup, and timed-wait expiry can find and remove it generically.
func (k *Kernel) enqueueWaitLocked(list *waitList, t *Thread) {
	list.add(t)
	t.memberOf = list
}

// wakeLocked transitions t to ready. It always clears any pending timed-
// wait deadline t registered, regardless of which path is waking it —
// without this, a thread woken by (say) a semaphore Post while it also
// has a SleepFor-style deadline pending would still be sitting in
// k.timedWaiters, and a tick landing before it's actually dispatched
// would try to wake it a second time.
func (k *Kernel) wakeLocked(t *Thread, reason Result) {
	k.removeTimedWaiterLocked(t)
	t.state = ThreadReady
	t.wakeReason = reason
	k.ready.add(t)
	k.requestReschedLocked()
}

// wakeFromWaitLocked removes t from whatever list currently holds it
// (discovered via t.memberOf) and marks it ready. Used by Cancel, Wakeup,
// and timed-wait expiry, none of which know in advance which primitive t
// is blocked on.
func (k *Kernel) wakeFromWaitLocked(t *Thread, reason Result) {
	if t.memberOf != nil {
		t.memberOf.remove(t)
		t.memberOf = nil
	}
	t.waitingOn = nil
	k.wakeLocked(t, reason)
}

// wakeHighestLocked pops the highest-priority member of list and wakes it.
// Used by primitives (mutex unlock, semaphore post, condvar signal, queue
// put/get) that already hold a reference to the specific list involved.
func (k *Kernel) wakeHighestLocked(list *waitList, reason Result) *Thread {
	t := list.popHighest()
	if t == nil {
		return nil
	}
	t.memberOf = nil
	k.wakeLocked(t, reason)
	return t
}

// wakeAllLocked drains list, waking every member.
func (k *Kernel) wakeAllLocked(list *waitList, reason Result) []*Thread {
	items := list.drainAll()
	for _, t := range items {
		t.memberOf = nil
		k.wakeLocked(t, reason)
	}
	return items
}

// blockOn is the common suspension-point body for the blocking APIs:
// join, condvar wait, semaphore wait, queue put/get, and sleep_for
// (mutex lock has its own equivalent path in Mutex.acquire). It takes k.mu itself before handing off to blockOnLocked;
// callers that must check a precondition and enqueue within one
// unbroken critical section (so an ISR-context wakeup producer can never
// land in the gap between the check and the enqueue) call
// blockOnLocked directly while already holding k.mu instead.
func (k *Kernel) blockOn(self *Thread, list *waitList, timeoutTicks uint64) Result {
	k.mu.Lock()
	return k.blockOnLocked(self, list, timeoutTicks)
}

// blockOnLocked is blockOn's body, assuming the caller already holds
// k.mu (and will no longer hold it on return). It adds the current
// thread to list, optionally registers a tick deadline, dispatches the
// next thread, and parks until woken.
func (k *Kernel) blockOnLocked(self *Thread, list *waitList, timeoutTicks uint64) Result {
	if self.cancelRequested {
		self.cancelRequested = false
		k.mu.Unlock()
		return EINTR
	}

	self.state = ThreadWaiting
	k.enqueueWaitLocked(list, self)

	var timed bool
	if timeoutTicks > 0 {
		k.addTimedWaiterLocked(self, k.ticks+timeoutTicks)
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
	return reason
}

func (k *Kernel) handlePanic(t *Thread, v any) {
	info := PanicInfo{ThreadID: t.id, ThreadName: t.name, Value: v}
	k.panicOnce.Do(func() {
		info.Stack = captureStack()
		if k.panicHandler != nil {
			k.panicHandler(info)
		}
	})
}

// SetPanicHandler installs a handler invoked at most once, the first time
// a thread's entry function panics with anything other than Thread.Exit's
// internal unwind signal. It must not itself panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.panicHandler = fn
}

// PanicInfo describes a recovered thread panic.
type PanicInfo struct {
	ThreadID   uint32
	ThreadName string
	Value      any
	Stack      []byte
}
