package kernel

import (
	"testing"
	"time"
	"unsafe"
)

func TestMailQueueAllocPutGetFree(t *testing.T) {
	k := New()
	buf := make([]byte, 4*8)
	mq := k.NewMailQueue(buf, 8, 4)

	type outcome struct {
		allocRes Result
		putRes   Result
		getRes   Result
		freeRes  Result
		payload  byte
	}
	outCh := make(chan outcome, 1)

	th, _ := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		var o outcome
		blk, res := mq.Alloc(self, 0)
		o.allocRes = res
		if res != Ok {
			outCh <- o
			return nil
		}
		*(*byte)(blk) = 0x42
		o.putRes = mq.Put(self, blk)

		got, res := mq.Get(self, 0)
		o.getRes = res
		if res == Ok {
			o.payload = *(*byte)(got)
			o.freeRes = mq.Free(got)
		}
		outCh <- o
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitExit(t, th)

	o := <-outCh
	if o.allocRes != Ok {
		t.Fatalf("Alloc=%v, want %v", o.allocRes, Ok)
	}
	if o.putRes != Ok {
		t.Fatalf("Put=%v, want %v", o.putRes, Ok)
	}
	if o.getRes != Ok {
		t.Fatalf("Get=%v, want %v", o.getRes, Ok)
	}
	if o.payload != 0x42 {
		t.Fatalf("payload=%#x, want %#x", o.payload, 0x42)
	}
	if o.freeRes != Ok {
		t.Fatalf("Free=%v, want %v", o.freeRes, Ok)
	}
}

func TestMailQueuePutRejectsUnallocatedBlock(t *testing.T) {
	k := New()
	buf := make([]byte, 1*8)
	mq := k.NewMailQueue(buf, 8, 1)

	var foreign [8]byte
	resCh := make(chan Result, 1)

	th, _ := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		resCh <- mq.Put(self, unsafe.Pointer(&foreign[0]))
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitExit(t, th)

	if res := <-resCh; res != ErrorValue {
		t.Fatalf("Put(foreign)=%v, want %v", res, ErrorValue)
	}
}

func TestMailQueueFreeRejectsDoubleFree(t *testing.T) {
	k := New()
	buf := make([]byte, 1*8)
	mq := k.NewMailQueue(buf, 8, 1)

	results := make(chan [2]Result, 1)

	th, _ := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		blk, _ := mq.Alloc(self, 0)
		var r [2]Result
		r[0] = mq.Free(blk)
		r[1] = mq.Free(blk)
		results <- r
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}
	waitExit(t, th)

	r := <-results
	if r[0] != Ok {
		t.Fatalf("first Free=%v, want %v", r[0], Ok)
	}
	if r[1] != ErrorValue {
		t.Fatalf("double Free=%v, want %v", r[1], ErrorValue)
	}
}

func TestMailQueueAllocBlocksUntilFreedBlockAvailable(t *testing.T) {
	k := New()
	buf := make([]byte, 1*8)
	mq := k.NewMailQueue(buf, 8, 1)

	holdBlk, res := mq.Alloc(nil, 0)
	if res != Ok {
		t.Fatalf("initial Alloc: %v", res)
	}

	waiterRes := make(chan Result, 1)
	waiter, _ := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread, arg any) any {
		_, res := mq.Alloc(self, 20)
		waiterRes <- res
		return nil
	}, nil)

	if res := k.Start(); res != Ok {
		t.Fatalf("Start: %v", res)
	}

	// Let the waiter observe exhaustion and enter its sleep-and-retry loop
	// at least once before the block becomes available.
	waitForState(t, waiter, ThreadWaiting)
	for i := 0; i < 3; i++ {
		k.TickISR()
	}
	if res := mq.Free(holdBlk); res != Ok {
		t.Fatalf("Free: %v", res)
	}
	for i := 0; i < 5; i++ {
		k.TickISR()
	}

	select {
	case res := <-waiterRes:
		if res != Ok {
			t.Fatalf("Alloc after Free=%v, want %v", res, Ok)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for Alloc to unblock")
	}
	waitExit(t, waiter)
}
