package kernel

// ThreadSnapshot is a point-in-time, lock-free-to-read copy of one
// thread's scheduling-relevant state.
type ThreadSnapshot struct {
	ID         uint32
	Name       string
	State      ThreadState
	BasePrio   Priority
	DynPrio    Priority
	WakeReason Result
}

// Snapshot is a point-in-time read of the whole kernel, handed back by
// value so callers (tests, the scenario harness, cmd/ktop) never hold
// k.mu themselves. Grounded in the teacher's PanicInfo/introspection
// style of returning small plain structs rather than live references.
type Snapshot struct {
	Tick      uint64
	RunningID uint32 // 0 if no thread is running
	Threads   []ThreadSnapshot
}

// Snapshot captures the kernel's current scheduling state.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	snap := Snapshot{Tick: k.ticks}
	if k.running != nil {
		snap.RunningID = k.running.id
	}
	snap.Threads = make([]ThreadSnapshot, 0, len(k.threads))
	for _, t := range k.threads {
		snap.Threads = append(snap.Threads, ThreadSnapshot{
			ID:         t.id,
			Name:       t.name,
			State:      t.state,
			BasePrio:   t.basePrio,
			DynPrio:    t.prio,
			WakeReason: t.wakeReason,
		})
	}
	return snap
}
