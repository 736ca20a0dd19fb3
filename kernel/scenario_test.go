package kernel

import "testing"

// TestScenarioPriorityPreemption is spec.md §8 scenario 1: a low-priority
// thread that busy-loops must not prevent a higher-priority thread from
// running and completing first on this single-core scheduler.
func TestScenarioPriorityPreemption(t *testing.T) {
	k := New()
	sem := k.NewSemaphore(0, 1)
	order := make(chan string, 2)
	stopLow := make(chan struct{})

	k.NewThread(ThreadAttr{Name: "low", Priority: PriorityLow}, func(self *Thread, arg any) any {
		for i := 0; ; i++ {
			select {
			case <-stopLow:
				order <- "low"
				return nil
			default:
				self.k.Yield(self)
			}
		}
	}, nil)

	k.NewThread(ThreadAttr{Name: "high", Priority: PriorityHigh}, func(self *Thread, arg any) any {
		sem.Post()
		order <- "high"
		close(stopLow)
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}

	first := <-order
	if first != "high" {
		t.Fatalf("first to post/finish=%q, want %q", first, "high")
	}
	<-order
}

// TestScenarioTimedWait is spec.md §8 scenario 2: sleep_for(100) issued at
// tick 1000 must wake at tick ≥ 1100 with result etimedout.
func TestScenarioTimedWait(t *testing.T) {
	k := New()
	for i := 0; i < 1000; i++ {
		k.TickISR()
	}

	resCh := make(chan Result, 1)
	th, _ := k.NewThread(ThreadAttr{Name: "sleeper", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		resCh <- self.k.SleepFor(self, 100)
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitForState(t, th, ThreadWaiting)

	for i := 0; i < 100; i++ {
		k.TickISR()
	}

	res := <-resCh
	if res != ETimedOut {
		t.Fatalf("result=%v, want %v", res, ETimedOut)
	}
	if got := k.Now(); got < 1100 {
		t.Fatalf("wake tick=%d, want >= 1100", got)
	}
	waitExit(t, th)
}

// TestScenarioPriorityInheritance is spec.md §8 scenario 3.
func TestScenarioPriorityInheritance(t *testing.T) {
	k := New()
	m := k.NewMutex(MutexAttr{Protocol: MutexProtocolInherit})
	release := k.NewSemaphore(0, 1)
	// high is dispatched first, so it parks on lowHolds until low owns m.
	lowHolds := k.NewSemaphore(0, 1)

	low, _ := k.NewThread(ThreadAttr{Name: "low", Priority: PriorityLow}, func(self *Thread, arg any) any {
		if res := m.Lock(self); res != Ok {
			return res
		}
		lowHolds.Post()
		release.Wait(self)
		return m.Unlock(self)
	}, nil)

	high, _ := k.NewThread(ThreadAttr{Name: "high", Priority: PriorityHigh}, func(self *Thread, arg any) any {
		lowHolds.Wait(self)
		return m.Lock(self)
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitForState(t, high, ThreadWaiting)

	if got := low.GetPriority(); got != PriorityHigh {
		t.Fatalf("low effective priority while high blocked=%v, want %v", got, PriorityHigh)
	}

	release.Post()
	waitExit(t, low)
	waitExit(t, high)

	if got := low.GetPriority(); got != PriorityLow {
		t.Fatalf("low effective priority after unlock=%v, want reverted to %v", got, PriorityLow)
	}
	if high.State() != ThreadInactive {
		t.Fatalf("high state=%v, want %v (holds M and has exited)", high.State(), ThreadInactive)
	}
}

// TestScenarioRobustMutexRecovery is spec.md §8 scenario 4.
func TestScenarioRobustMutexRecovery(t *testing.T) {
	k := New()
	m := k.NewMutex(MutexAttr{Robustness: MutexRobust})

	t1, _ := k.NewThread(ThreadAttr{Name: "t1", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		return m.Lock(self)
	}, nil)

	type t2outcome struct {
		lockRes       Result
		consistentRes Result
		unlockRes     Result
	}
	outCh := make(chan t2outcome, 1)

	k.NewThread(ThreadAttr{Name: "t2", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		var o t2outcome
		o.lockRes = m.Lock(self)
		o.consistentRes = m.Consistent(self)
		o.unlockRes = m.Unlock(self)
		outCh <- o
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitExit(t, t1)

	o := <-outCh
	if o.lockRes != ErrorOS {
		t.Fatalf("T2 lock(M)=%v, want %v", o.lockRes, ErrorOS)
	}
	if o.consistentRes != Ok {
		t.Fatalf("T2 consistent()=%v, want %v", o.consistentRes, Ok)
	}
	if o.unlockRes != Ok {
		t.Fatalf("T2 unlock after recovery=%v, want %v", o.unlockRes, Ok)
	}
}

// TestScenarioPoolOverAllocation is spec.md §8 scenario 5.
func TestScenarioPoolOverAllocation(t *testing.T) {
	k := New()
	buf := make([]byte, 3*8)
	p := k.NewPool(buf, 8, 3)

	a := p.Alloc()
	b := p.Alloc()
	c := p.Alloc()
	if a == nil || b == nil || c == nil {
		t.Fatalf("3 allocs = (%v,%v,%v), want all non-nil", a, b, c)
	}
	if a == b || b == c || a == c {
		t.Fatalf("allocs not distinct: %v %v %v", a, b, c)
	}

	if d := p.Alloc(); d != nil {
		t.Fatalf("4th Alloc()=%v, want nil", d)
	}

	if res := p.Free(a); res != Ok {
		t.Fatalf("Free: %v", res)
	}
	if e := p.Alloc(); e == nil {
		t.Fatalf("Alloc() after Free = nil, want non-nil")
	}
}

// TestScenarioISRContract is spec.md §8 scenario 6: from simulated ISR
// context, post succeeds, wait fails with error_isr, and Wakeup delivers a
// wakeup reason the target observes once the ISR returns.
func TestScenarioISRContract(t *testing.T) {
	k := New()
	sem := k.NewSemaphore(0, 1)

	waitRes := make(chan Result, 1)
	waiter, _ := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		waitRes <- sem.Wait(self)
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitForState(t, waiter, ThreadWaiting)

	k.inISR.Store(true)
	postRes := sem.Post()
	waitSelfRes := sem.Wait(waiter)
	wakeupRes := waiter.WakeupReasoned(Ok)
	k.inISR.Store(false)

	if postRes != EOVERFLOW && postRes != Ok {
		t.Fatalf("Post from ISR=%v, want %v or %v", postRes, Ok, EOVERFLOW)
	}
	if waitSelfRes != ErrorISR {
		t.Fatalf("Wait from ISR=%v, want %v", waitSelfRes, ErrorISR)
	}
	if wakeupRes != Ok {
		t.Fatalf("Wakeup from ISR=%v, want %v", wakeupRes, Ok)
	}

	waitExit(t, waiter)
	if res := <-waitRes; res != Ok {
		t.Fatalf("waiter's wakeup reason=%v, want %v", res, Ok)
	}
	if got := waiter.WakeupReason(); got != Ok {
		t.Fatalf("get_wakeup_reason()=%v, want %v", got, Ok)
	}
}
