package kernel

// waitList is the prioritised blocking queue shared by the scheduler's
// ready set and every synchronization primitive (mutex, condvar,
// semaphore, message/mail queue). Threads are ordered by descending
// dynamic priority, FIFO among threads of equal priority. A thread is a
// member of at most one waitList at a time; that invariant is enforced by
// callers, not by this type.
//
// Kept deliberately simple (slice-backed, O(n) insert/remove) per
// spec.md's "removal is O(n) at worst" allowance — a doubly linked list
// would only pay for itself on wait lists with hundreds of threads, which
// this kernel does not target.
type waitList struct {
	items []*Thread
}

// add inserts t preserving descending-priority, FIFO-within-priority order.
func (wl *waitList) add(t *Thread) {
	prio := t.priority()
	i := 0
	for ; i < len(wl.items); i++ {
		if wl.items[i].priority() < prio {
			break
		}
	}
	wl.items = append(wl.items, nil)
	copy(wl.items[i+1:], wl.items[i:])
	wl.items[i] = t
}

// remove deletes t from the list if present, reporting whether it was
// found.
func (wl *waitList) remove(t *Thread) bool {
	for i, cand := range wl.items {
		if cand == t {
			wl.items = append(wl.items[:i], wl.items[i+1:]...)
			return true
		}
	}
	return false
}

// popHighest removes and returns the head of the list, or nil if empty.
func (wl *waitList) popHighest() *Thread {
	if len(wl.items) == 0 {
		return nil
	}
	t := wl.items[0]
	wl.items = wl.items[1:]
	return t
}

// peekHighest returns the head of the list without removing it.
func (wl *waitList) peekHighest() *Thread {
	if len(wl.items) == 0 {
		return nil
	}
	return wl.items[0]
}

func (wl *waitList) len() int { return len(wl.items) }

func (wl *waitList) contains(t *Thread) bool {
	for _, cand := range wl.items {
		if cand == t {
			return true
		}
	}
	return false
}

// reorder re-positions t after its dynamic priority changed. No-op if t is
// not a member.
func (wl *waitList) reorder(t *Thread) {
	if !wl.remove(t) {
		return
	}
	wl.add(t)
}

// drainAll removes and returns every member, highest priority first.
func (wl *waitList) drainAll() []*Thread {
	items := wl.items
	wl.items = nil
	return items
}
