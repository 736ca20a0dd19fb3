package kernel

// This file documents and guards the two critical sections spec.md §4.1
// requires. The scheduler critical section (nestable lock/unlock with a
// deferred reschedule on the outermost unlock) is realized by
// Kernel.Lock/Unlock in kernel.go, built directly on k.mu plus the
// lockDepth counter — Go gives us no separate notion of "interrupt
// priority mask" to raise, so there is nothing a standalone type would
// add over that counter.
//
// The IRQ critical section is realized more directly still: because
// every piece of kernel state that an ISR can touch (wait lists, the
// tick counter, free-list heads, queue slots) is already guarded by
// k.mu, holding k.mu IS the IRQ critical section — entry "masks
// interrupts" in the sense that TickISR and any other ISR-context entry
// point must also take k.mu before touching shared state, and therefore
// cannot interleave with a thread-context critical region. No saved-mask
// value needs to be threaded through call sites the way real firmware
// threads port_irq_disable's return value, because Go's mutex already
// gives nested callers the blocking semantics a saved/restored mask is
// approximating in C.
//
// errISRGuard is the one piece of behavior worth factoring out: the
// Mutex operations and the blocking calls (Cond.Wait/TimedWait,
// Semaphore waits, Queue and MailQueue calls with a nonzero timeout,
// SleepFor, Join) call it first and return ErrorISR from ISR context.
// Other non-blocking calls outside the ISR-safe subset (spec.md §5),
// such as Yield, SetPriority, Cancel or NewThread, do not check it.
func (k *Kernel) errISRGuard() Result {
	if k.inISR.Load() {
		return ErrorISR
	}
	return Ok
}
