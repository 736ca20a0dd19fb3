// Package buildinfo stamps kernel build identity; cmd/ktop shows it in
// its window title.
package buildinfo

// Version is set at build time via -ldflags.
var Version = "dev"

// Commit is set at build time via -ldflags.
var Commit = "unknown"

// TickHz records the tick frequency this build was compiled for, set at
// build time via -ldflags alongside Version. It has no effect on the
// kernel itself — port.Port.TickInit is configured independently — and
// nothing in this module reads it; it only records the assumed rate.
var TickHz = "1000"

// Short returns a compact build identifier for UI/logging.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}
