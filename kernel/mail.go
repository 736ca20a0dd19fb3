package kernel

import "unsafe"

// MailQueue composes a Queue with a Pool: mail is a pool-allocated block
// whose address is what flows through the queue, per spec.md §4.9.
// Ownership of a block is with the allocator until Put, then with the
// receiver until Free; a double-free or a free of a foreign block
// returns ErrorValue.
type MailQueue struct {
	k     *Kernel
	pool  *Pool
	queue *Queue

	// owned tracks, for every block currently checked out of the pool
	// (allocated but not yet freed), whether it has already been handed
	// to Put — this is the debug-build ownership tracking spec.md §9's
	// third open question calls optional; it costs one map lookup per
	// Alloc/Put/Free and catches double-free and foreign-free precisely.
	owned map[unsafe.Pointer]mailState
}

type mailState uint8

const (
	mailAllocated mailState = iota
	mailQueued
)

// NewMailQueue constructs a mail queue whose blocks come from buf,
// carved into blockLen blocks of blockSize bytes, with a queue capacity
// of blockLen (every allocated block can be in flight at once).
func (k *Kernel) NewMailQueue(buf []byte, blockSize uintptr, blockLen int) *MailQueue {
	return &MailQueue{
		k:     k,
		pool:  k.NewPool(buf, blockSize, blockLen),
		queue: k.NewQueue(blockLen),
		owned: make(map[unsafe.Pointer]mailState),
	}
}

// Alloc obtains a block from the pool, blocking self up to timeoutTicks
// if none is free. The returned block is owned by the calling thread
// until Put.
func (mq *MailQueue) Alloc(self *Thread, timeoutTicks uint64) (unsafe.Pointer, Result) {
	if timeoutTicks > 0 {
		if res := mq.k.errISRGuard(); res != Ok {
			return nil, res
		}
	}
	deadline := uint64(0)
	if timeoutTicks > 0 {
		deadline = mq.k.Now() + timeoutTicks
	}
	for {
		if blk := mq.pool.Alloc(); blk != nil {
			mq.k.mu.Lock()
			mq.owned[blk] = mailAllocated
			mq.k.mu.Unlock()
			return blk, Ok
		}
		if timeoutTicks == 0 {
			return nil, ErrorNoMemory
		}
		remaining := deadline - mq.k.Now()
		if remaining == 0 || remaining > timeoutTicks {
			remaining = timeoutTicks
		}
		// Pool exhaustion has no dedicated wait list in spec.md's model
		// (alloc/free are O(1), lock-free of any blocking primitive); a
		// short sleep-and-retry is the documented compromise for a
		// caller-requested blocking allocation.
		if res := mq.k.SleepFor(self, 1); res == EINTR {
			return nil, EINTR
		}
		if mq.k.Now() >= deadline {
			return nil, ErrorNoMemory
		}
	}
}

// Put enqueues blk, transferring ownership from the calling thread to
// whichever thread eventually calls Get.
func (mq *MailQueue) Put(self *Thread, blk unsafe.Pointer) Result {
	mq.k.mu.Lock()
	if state, ok := mq.owned[blk]; !ok || state != mailAllocated {
		mq.k.mu.Unlock()
		return ErrorValue
	}
	mq.owned[blk] = mailQueued
	mq.k.mu.Unlock()
	return mq.queue.Put(self, uintptr(blk), 0)
}

// Get dequeues one mail block, blocking self up to timeoutTicks if none
// is available. The returned block is owned by the calling thread until
// Free.
func (mq *MailQueue) Get(self *Thread, timeoutTicks uint64) (unsafe.Pointer, Result) {
	word, res := mq.queue.Get(self, timeoutTicks)
	if res != Ok {
		return nil, res
	}
	blk := unsafe.Pointer(word) // word is a pool block address round-tripped through Queue's uintptr ring
	mq.k.mu.Lock()
	mq.owned[blk] = mailAllocated
	mq.k.mu.Unlock()
	return blk, Ok
}

// Free returns blk to the pool. Returns ErrorValue for a block not
// currently owned by the caller's side of the pipeline (already freed,
// still queued, or foreign to this mail queue).
func (mq *MailQueue) Free(blk unsafe.Pointer) Result {
	mq.k.mu.Lock()
	state, ok := mq.owned[blk]
	if !ok || state != mailAllocated {
		mq.k.mu.Unlock()
		return ErrorValue
	}
	delete(mq.owned, blk)
	mq.k.mu.Unlock()
	return mq.pool.Free(blk)
}
