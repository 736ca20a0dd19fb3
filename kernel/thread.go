package kernel

import (
	"fmt"
	"sync/atomic"
)

// ThreadState is a Thread's position in the state machine from spec.md §3/§4.3.
type ThreadState uint8

const (
	ThreadInactive ThreadState = iota
	ThreadReady
	ThreadRunning
	ThreadWaiting
)

func (s ThreadState) String() string {
	switch s {
	case ThreadInactive:
		return "inactive"
	case ThreadReady:
		return "ready"
	case ThreadRunning:
		return "running"
	case ThreadWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// ThreadFunc is a thread's entry point. self is the Thread's own handle,
// required by every blocking kernel call the thread makes (Mutex.Lock,
// Semaphore.Wait, Kernel.Yield, and so on all take the caller's self
// explicitly — Go has no notion of "the current goroutine" to infer it
// from). The return value becomes the thread's exit value, observed by
// Join.
type ThreadFunc func(self *Thread, arg any) any

// ThreadAttr configures thread construction. Name and Priority are
// required in practice; a zero Priority is rejected by NewThread.
type ThreadAttr struct {
	Name       string
	Priority   Priority
	StackBytes uint32 // informational only; Go manages the real stack.
}

// Thread is a cooperatively-dispatched unit of execution. One goroutine
// backs each Thread for its lifetime; the scheduler's baton (gate)
// determines when that goroutine is allowed to run, never Go's own
// goroutine scheduler.
type Thread struct {
	k    *Kernel
	id   uint32
	name string

	entry ThreadFunc
	arg   any

	basePrio Priority
	prio     Priority // effective/dynamic priority, possibly boosted

	state      ThreadState
	wakeReason Result

	detached bool
	exited   bool
	exitVal  any
	joiners  waitList
	done     chan struct{} // closed once, on exit; safe to await from non-kernel goroutines

	cancelRequested bool
	deadline        uint64 // valid only while memberOf a timed wait

	// pendingMsg carries a word-sized message directly between a blocked
	// Queue producer/consumer pair, bypassing the ring buffer so a
	// message handed off at wake time can never be stolen by an
	// unrelated non-blocking Put/Get that runs before the woken thread
	// gets the baton.
	pendingMsg uintptr

	// heldMutexes and waitingOn support the bounded priority-inheritance
	// propagation walk in mutex.go.
	heldMutexes []*Mutex
	waitingOn   *Mutex

	// memberOf is the wait list currently holding this thread while it is
	// ThreadWaiting, or nil. It lets Cancel/Wakeup/timed-wait-expiry
	// remove the thread without the caller knowing which primitive it
	// blocked on.
	memberOf *waitList

	gate chan struct{} // the scheduling baton; buffered, capacity 1.

	stackBytes uint32

	// isrBusy guards WakeupReasoned against reentry: a second ISR-context
	// wakeup landing on this thread while an earlier one hasn't completed
	// returns ErrorISRRecursive. Checked with a CAS before k.mu is ever
	// taken, so a genuinely nested call can't deadlock on the
	// non-reentrant mutex.
	isrBusy atomic.Bool
}

func (t *Thread) priority() Priority {
	return t.prio
}

// ID returns the thread's kernel-assigned identifier.
func (t *Thread) ID() uint32 { return t.id }

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// State returns the thread's current state under the kernel lock.
func (t *Thread) State() ThreadState {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

// WakeupReason returns the result code recorded the last time this thread
// transitioned out of waiting.
func (t *Thread) WakeupReason() Result {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.wakeReason
}

// GetPriority returns the thread's current dynamic priority.
func (t *Thread) GetPriority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.prio
}

// SetPriority sets the thread's base (and, absent any active inheritance
// boost, dynamic) priority. Outside [PriorityIdle, PriorityMax] it returns
// EINVAL without effect.
func (t *Thread) SetPriority(p Priority) Result {
	if !validPriority(p) {
		return EINVAL
	}
	t.k.mu.Lock()
	defer t.k.mu.Unlock()

	t.basePrio = p
	// With no protocol boost in effect, the dynamic priority tracks base.
	if !t.boosted() {
		t.setDynamicPriorityLocked(p)
	}
	t.k.requestReschedLocked()
	return Ok
}

func (t *Thread) boosted() bool {
	for _, m := range t.heldMutexes {
		if m.protocol != MutexProtocolNone {
			return true
		}
	}
	return false
}

// setDynamicPriorityLocked updates prio and re-homes the thread in whatever
// list currently holds it (ready queue or a primitive's wait list).
func (t *Thread) setDynamicPriorityLocked(p Priority) {
	if t.prio == p {
		return
	}
	t.prio = p
	switch t.state {
	case ThreadReady:
		t.k.ready.reorder(t)
	case ThreadWaiting:
		if t.memberOf != nil {
			t.memberOf.reorder(t)
		}
	}
}

// NewThread constructs a thread and enqueues it as ready. The thread's
// goroutine starts immediately but makes no progress until the scheduler
// grants it the baton (either via Start, or immediately if the scheduler
// is already running and this is the highest-priority ready thread at the
// next scheduling point).
func (k *Kernel) NewThread(attr ThreadAttr, fn ThreadFunc, arg any) (*Thread, Result) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.newThreadLocked(attr, fn, arg)
}

// run is the trampoline every thread goroutine executes. It parks on the
// baton until dispatched, runs the entry function, and performs an
// implicit Exit with the returned value. A call to Thread.Exit inside the
// entry function unwinds here via panic/recover, matching spec.md's
// "never returns" contract for exit() without actually terminating the Go
// process.
func (t *Thread) run() {
	<-t.gate

	var exitVal any
	func() {
		defer func() {
			if r := recover(); r != nil {
				if sig, ok := r.(exitSignal); ok {
					exitVal = sig.value
					return
				}
				t.k.handlePanic(t, r)
			}
		}()
		exitVal = t.entry(t, t.arg)
	}()

	t.k.exitThread(t, exitVal)
}

type exitSignal struct{ value any }

// Exit records the thread's exit value and terminates it. It never
// returns to the caller.
func (t *Thread) Exit(value any) {
	panic(exitSignal{value: value})
}

func (k *Kernel) exitThread(t *Thread, value any) {
	k.mu.Lock()
	t.exited = true
	t.exitVal = value
	t.state = ThreadInactive
	for _, held := range append([]*Mutex(nil), t.heldMutexes...) {
		held.onOwnerDiedLocked(t)
	}
	t.heldMutexes = nil
	k.wakeAllLocked(&t.joiners, Ok)
	k.unregisterThreadLocked(t)
	next := k.dispatchLocked()
	k.mu.Unlock()

	close(t.done)
	if next != nil {
		next.gate <- struct{}{}
	}
}

func (k *Kernel) unregisterThreadLocked(t *Thread) {
	for i, cand := range k.threads {
		if cand == t {
			k.threads = append(k.threads[:i], k.threads[i+1:]...)
			return
		}
	}
}

// Cancel requests termination. The target observes the request at its
// next suspension point; a thread currently blocked wakes immediately
// with EINTR. Canceling an already-terminated thread is a no-op and
// returns Ok (spec.md §9 Open Question, resolved: unconditional success).
func (t *Thread) Cancel() Result {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()

	if t.exited {
		return Ok
	}
	t.cancelRequested = true
	if t.state == ThreadWaiting {
		t.k.wakeFromWaitLocked(t, EINTR)
	}
	return Ok
}

// Canceled reports whether Cancel has been requested and not yet observed.
func (t *Thread) Canceled() bool {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.cancelRequested
}

// Detach marks the thread as self-reaping. A subsequent Join fails with
// EINVAL.
func (t *Thread) Detach() Result {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	t.detached = true
	return Ok
}

// Join blocks the calling kernel thread self until t terminates, then
// returns t's exit value. self gives up the baton while waiting, letting
// lower-priority threads run. Fails with EINVAL if t is detached or if
// self == t.
func (t *Thread) Join(self *Thread) (any, Result) {
	if res := t.k.errISRGuard(); res != Ok {
		return nil, res
	}
	if t == self {
		return nil, EINVAL
	}
	k := t.k
	k.mu.Lock()
	if t.detached {
		k.mu.Unlock()
		return nil, EINVAL
	}
	if t.exited {
		v := t.exitVal
		k.mu.Unlock()
		return v, Ok
	}
	k.mu.Unlock()

	res := k.blockOn(self, &t.joiners, 0)
	if res != Ok {
		return nil, res
	}

	k.mu.Lock()
	v := t.exitVal
	k.mu.Unlock()
	return v, Ok
}

// Wait blocks the calling goroutine until t terminates, without
// participating in scheduling at all. Unlike Join, the caller need not be
// a kernel Thread — this is the entry point host-level code (tests,
// cmd/ktop, an application's real main) uses to wait out a kernel thread
// from outside the RTOS's scheduling domain.
func (t *Thread) Wait() any {
	<-t.done
	return t.exitVal
}

// Wakeup forces a waiting thread to ready with the default reason EINTR.
// It is a no-op if the thread is not waiting. Safe to call from ISR
// context.
func (t *Thread) Wakeup() Result { return t.WakeupReasoned(EINTR) }

// WakeupReasoned is Wakeup with an explicit wakeup reason.
func (t *Thread) WakeupReasoned(reason Result) Result {
	if !t.isrBusy.CompareAndSwap(false, true) {
		return ErrorISRRecursive
	}
	defer t.isrBusy.Store(false)

	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	if t.state != ThreadWaiting {
		return Ok
	}
	t.k.wakeFromWaitLocked(t, reason)
	return Ok
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread(%d,%q,prio=%d,state=%s)", t.id, t.name, t.prio, t.state)
}
