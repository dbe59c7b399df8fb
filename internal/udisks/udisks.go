// Package udisks attaches and detaches block-device filesystems through
// the udisks2 daemon, which self-manages mount points and does not need
// the caller to hold root. Two backends are available: the udisksctl CLI
// and the daemon's D-Bus API.
package udisks

import (
	"fmt"

	"github.com/open-imaging/mediaprep/internal/sysexec"
)

// Manager defines the udisks mount-management operations
type Manager interface {
	// Mount attaches the device's filesystem and returns the mount
	// point udisks chose for it
	Mount(device string) (string, error)

	// Unmount detaches whatever is mounted at the given mount point
	Unmount(mountPoint string) error
}

// NewManager creates a Manager for the specified backend.
func NewManager(backend string, runner sysexec.Runner) (Manager, error) {
	switch backend {
	case "cli":
		return NewCLIManager(runner), nil
	case "dbus":
		return NewDBusManager()
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'cli' or 'dbus')", backend)
	}
}
