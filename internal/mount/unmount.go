package mount

import (
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/sysexec"
	"github.com/open-imaging/mediaprep/internal/udisks"
)

// defaultSettleDelay is the pause between sync and the first unmount
// attempt, letting in-flight writes reach the device.
const defaultSettleDelay = 500 * time.Millisecond

// syncFS flushes filesystem buffers. Package variable so tests can stub
// it out.
var syncFS = unix.Sync

// unmountStrategy is one way of detaching a mount point.
type unmountStrategy struct {
	name    string
	attempt func() error
}

// Unmounter detaches a mount point, flushing pending writes first.
type Unmounter struct {
	runner sysexec.Runner
	udisks udisks.Manager

	// SettleDelay overrides the post-sync pause; defaultSettleDelay
	// when zero
	SettleDelay time.Duration

	// removeTempDir is stubbed in tests
	removeTempDir func(path string)
}

// NewUnmounter creates an Unmounter.
func NewUnmounter(runner sysexec.Runner, manager udisks.Manager) *Unmounter {
	return &Unmounter{
		runner:        runner,
		udisks:        manager,
		removeTempDir: removeEmptyDir,
	}
}

// Unmount detaches the mount point, trying each strategy in order. It
// returns false only after every strategy failed. After the final lazy
// unmount, the namespace entry is gone but device I/O may still be
// completing; only the sync issued here is guaranteed.
func (u *Unmounter) Unmount(mountPoint string) bool {
	if mountPoint == "" {
		return false
	}

	// Flush pending writes and let them settle before detaching
	syncFS()
	time.Sleep(u.settleDelay())

	var lastErr error
	for _, strategy := range u.strategies(mountPoint) {
		if err := strategy.attempt(); err != nil {
			log.Debug("unmount strategy failed", "strategy", strategy.name, "mountPoint", mountPoint, "error", err)
			lastErr = err
			continue
		}

		log.Info("unmounted", "mountPoint", mountPoint, "strategy", strategy.name)
		if strings.Contains(mountPoint, tempMountPrefix) {
			u.removeTempDir(mountPoint)
		}
		return true
	}

	log.Warn("failed to unmount", "mountPoint", mountPoint, "error", lastErr)
	return false
}

// strategies returns the unmount attempts in fallback order. The udisks
// attempt only applies to mount points udisks manages itself; the lazy
// unmount at the end detaches the namespace entry even when the mount
// is busy.
func (u *Unmounter) strategies(mountPoint string) []unmountStrategy {
	var strategies []unmountStrategy

	if isManagedMountPoint(mountPoint) {
		strategies = append(strategies, unmountStrategy{
			name: "udisks",
			attempt: func() error {
				return u.udisks.Unmount(mountPoint)
			},
		})
	}

	strategies = append(strategies,
		unmountStrategy{
			name: "umount",
			attempt: func() error {
				_, err := u.runner.Run(sysexec.Cmd{
					Name:    "umount",
					Args:    []string{mountPoint},
					Timeout: mountToolTimeout,
				})
				return err
			},
		},
		unmountStrategy{
			name: "elevated umount",
			attempt: func() error {
				_, err := u.runner.Run(sysexec.Cmd{
					Name:    "umount",
					Args:    []string{mountPoint},
					Timeout: elevatedToolTimeout,
					Elevate: true,
				})
				return err
			},
		},
		unmountStrategy{
			name: "lazy umount",
			attempt: func() error {
				_, err := u.runner.Run(sysexec.Cmd{
					Name:    "umount",
					Args:    []string{"-l", mountPoint},
					Timeout: mountToolTimeout,
				})
				return err
			},
		},
	)

	return strategies
}

func (u *Unmounter) settleDelay() time.Duration {
	if u.SettleDelay > 0 {
		return u.SettleDelay
	}
	return defaultSettleDelay
}

// isManagedMountPoint reports whether the mount point lives under a
// udisks-managed media directory.
func isManagedMountPoint(mountPoint string) bool {
	return strings.HasPrefix(mountPoint, "/run/media/") || strings.HasPrefix(mountPoint, "/media/")
}

func removeEmptyDir(path string) {
	if err := unix.Rmdir(path); err != nil {
		log.Warn("failed to remove temp mount point", "path", path, "error", err)
	}
}
