//go:build !tinygo

package port

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HostPort is the development/simulation Port: a time.Ticker drives the
// tick source and a plain sync.Mutex simulates interrupt masking,
// grounded in the teacher's hal/host_time.go software tick loop.
type HostPort struct {
	mu     sync.Mutex
	masked bool
	ticker *time.Ticker
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewHostPort constructs a Port with interrupts initially unmasked.
func NewHostPort() *HostPort {
	return &HostPort{}
}

// IRQDisable simulates masking by taking mu; the returned mask is 1 if
// interrupts were previously unmasked, 0 if this call nested into an
// already-masked state.
func (p *HostPort) IRQDisable() uint32 {
	p.mu.Lock()
	if p.masked {
		p.mu.Unlock()
		return 0
	}
	p.masked = true
	p.mu.Unlock()
	return 1
}

// IRQRestore unmasks if mask indicates this call owned the outermost
// IRQDisable.
func (p *HostPort) IRQRestore(mask uint32) {
	if mask == 0 {
		return
	}
	p.mu.Lock()
	p.masked = false
	p.mu.Unlock()
}

// ContextSwitch is a no-op; HostPort has no real register/stack state to
// save, the kernel's baton already serializes thread execution.
func (p *HostPort) ContextSwitch(prev, next ThreadHandle) {}

// IsInISR always reports false, including while the tick callback runs;
// HostPort does not track ISR context, the kernel does (Kernel.inISR).
func (p *HostPort) IsInISR() bool { return false }

// TickInit starts a time.Ticker at freqHz and runs isr on every tick
// from a dedicated goroutine run under an errgroup, which Shutdown
// cancels and waits for. A panic inside isr is not recovered.
func (p *HostPort) TickInit(freqHz uint32, isr func()) {
	period := time.Second / time.Duration(freqHz)
	p.ticker = time.NewTicker(period)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-p.ticker.C:
				isr()
			}
		}
	})
}

// RTCNow returns the host's wall-clock time.
func (p *HostPort) RTCNow() time.Time { return time.Now() }

// Shutdown stops the tick source and waits for its goroutine to exit,
// propagating any error other than context cancellation.
func (p *HostPort) Shutdown() error {
	if p.cancel == nil {
		return nil
	}
	p.ticker.Stop()
	p.cancel()
	if err := p.group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
