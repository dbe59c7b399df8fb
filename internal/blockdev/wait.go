package blockdev

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/open-imaging/mediaprep/internal/log"
)

// DefaultPollInterval is how often WaitReady re-checks the path.
const DefaultPollInterval = 100 * time.Millisecond

// Waiter polls for a path to appear. It bridges the gap between a
// partition-table rewrite (or format) finishing and udev publishing the
// device node.
type Waiter struct {
	// Interval between polls; DefaultPollInterval when zero
	Interval time.Duration
}

// WaitReady polls until path exists or timeout elapses. It returns false
// on timeout without an error; the caller decides whether absence is
// fatal. The total wait never exceeds timeout by more than one interval.
func (w Waiter) WaitReady(path string, timeout time.Duration) bool {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		if pathReady(path) {
			return true
		}
		if !time.Now().Before(deadline) {
			log.Warn("timed out waiting for path", "path", path, "timeout", timeout)
			return false
		}
		time.Sleep(interval)
	}
}

// pathReady reports whether the device node is present. Access with F_OK
// follows symlinks, which matters for /dev/disk/by-* style paths.
func pathReady(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}
