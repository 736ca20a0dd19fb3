// Command ktop is a host-only visual monitor for a running Kernel: it
// renders a live Snapshot (thread names, states, priorities, wakeup
// reasons, tick count) in a desktop window, grounded in the teacher's
// hal/host_window.go ebiten.Game loop and app/panic.go's tinyfont text
// rendering.
package main

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freesans"

	"nanokernel/internal/buildinfo"
	"nanokernel/kernel"
)

const (
	windowWidth  = 480
	windowHeight = 320
	rowHeight    = 14
)

// Monitor is a *kernel.Kernel wrapped in an ebiten.Game that polls
// Snapshot once per frame. It never mutates the kernel; a production
// application runs it alongside real kernel threads purely for
// visibility.
type Monitor struct {
	k *kernel.Kernel
}

// NewMonitor constructs a Monitor over k.
func NewMonitor(k *kernel.Kernel) *Monitor {
	return &Monitor{k: k}
}

// Run opens a desktop window showing k's scheduling state until closed.
func Run(k *kernel.Kernel) error {
	m := NewMonitor(k)
	ebiten.SetWindowTitle("ktop (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(windowWidth, windowHeight)
	ebiten.SetTPS(30)
	return ebiten.RunGame(m)
}

func (m *Monitor) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	return nil
}

func (m *Monitor) Layout(outsideWidth, outsideHeight int) (int, int) {
	return windowWidth, windowHeight
}

func (m *Monitor) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 16, G: 16, B: 20, A: 255})

	snap := m.k.Snapshot()
	fg := color.RGBA{R: 200, G: 220, B: 200, A: 255}
	hi := color.RGBA{R: 255, G: 210, B: 90, A: 255}

	header := fmt.Sprintf("tick=%d  running=#%d", snap.Tick, snap.RunningID)
	tinyfont.WriteLine(screen, &freesans.Regular12pt7b, 8, 16, header, fg)

	y := int16(16 + rowHeight*2)
	for _, t := range snap.Threads {
		c := fg
		if t.ID == snap.RunningID {
			c = hi
		}
		line := fmt.Sprintf("#%-3d %-16s prio=%-3d dyn=%-3d %-8s %s",
			t.ID, t.Name, t.BasePrio, t.DynPrio, t.State, t.WakeReason)
		tinyfont.WriteLine(screen, &freesans.Regular12pt7b, 8, y, line, c)
		y += rowHeight
	}

	ebitenutil.DebugPrint(screen, "ktop — q to quit")
}

func main() {
	k := kernel.New()
	if res := k.Start(); res != kernel.Ok {
		panic(res)
	}
	if err := Run(k); err != nil {
		panic(err)
	}
}
