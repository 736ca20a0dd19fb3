//go:build tinygo

package port

import (
	"time"

	"machine"

	"tinygo.org/x/drivers/ds3231"
)

// DS3231RTC adapts a tinygo.org/x/drivers/ds3231 battery-backed RTC chip
// to RTCDriver, mirroring the teacher's habit of wrapping a
// tinygo.org/x/drivers chip driver behind a small local interface
// (sparkos/services/term/display.go wraps drivers.Displayer the same
// way) instead of letting the chip type leak into kernel-facing code.
type DS3231RTC struct {
	dev ds3231.Device
}

// NewDS3231RTC configures the chip on the given I2C bus and returns a
// ready-to-use RTCDriver.
func NewDS3231RTC(bus *machine.I2C) *DS3231RTC {
	dev := ds3231.New(bus)
	dev.Configure()
	return &DS3231RTC{dev: dev}
}

// Now reads the chip's current time. A read failure reports the zero
// time rather than panicking; boards that need to distinguish a dead
// chip from midnight UTC should read the chip driver directly.
func (r *DS3231RTC) Now() time.Time {
	t, err := r.dev.ReadTime()
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetNow writes t to the chip's registers.
func (r *DS3231RTC) SetNow(t time.Time) error {
	return r.dev.SetTime(t)
}
