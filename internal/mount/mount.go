// Package mount attaches and detaches removable-media filesystems,
// falling back across udisks, the plain mount tools, and the elevation
// broker until one of them works.
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/open-imaging/mediaprep/internal/blockdev"
	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/mounttab"
	"github.com/open-imaging/mediaprep/internal/sysexec"
	"github.com/open-imaging/mediaprep/internal/udisks"
)

const (
	// tempMountPrefix names mount-point directories owned by this
	// program; only these are removed again after unmounting
	tempMountPrefix = "mediaprep-mount-"

	// mountToolTimeout bounds direct mount/umount invocations
	mountToolTimeout = 30 * time.Second
	// elevatedToolTimeout allows for the broker's interactive
	// authentication prompt
	elevatedToolTimeout = 60 * time.Second

	// partitionWaitTimeout is how long a freshly written partition gets
	// to show up in /dev
	partitionWaitTimeout = 10 * time.Second
	// altPartitionWaitTimeout is the short second chance given to the
	// opposite naming convention on unclassified devices
	altPartitionWaitTimeout = time.Second
)

// mountStrategy is one way of attaching a filesystem. Strategies are
// tried in order; only the last failure is surfaced to the caller.
type mountStrategy struct {
	name    string
	attempt func(partition string) (string, error)
}

// Mounter attaches a device's filesystem to a mount point.
type Mounter struct {
	runner sysexec.Runner
	table  *mounttab.Table
	udisks udisks.Manager

	// Waiter polls for partition nodes; the zero value uses the
	// default interval
	Waiter blockdev.Waiter
	// TempDir is where private mount points are created; defaults to
	// os.TempDir()
	TempDir string
}

// NewMounter creates a Mounter.
func NewMounter(runner sysexec.Runner, table *mounttab.Table, manager udisks.Manager) *Mounter {
	return &Mounter{
		runner: runner,
		table:  table,
		udisks: manager,
	}
}

// Mount attaches the device's filesystem and returns the mount point.
// It is idempotent: an already-mounted device returns its existing mount
// point without invoking any tool. Devices without a partition table
// (superfloppy layout) are mounted by their whole-device path.
func (m *Mounter) Mount(device string) (string, error) {
	partition := blockdev.PartitionPath(device)

	// Fast path: already mounted, as partition or as whole device. This
	// must come before anything that wants exclusive access.
	for _, candidate := range []string{partition, device} {
		mountPoint, err := m.table.MountPointOf(candidate)
		if err != nil {
			log.Warn("could not read mount state", "error", err)
			break
		}
		if mountPoint != "" {
			log.Debug("already mounted", "source", candidate, "mountPoint", mountPoint)
			return mountPoint, nil
		}
	}

	if !pathExists(partition) {
		if pathExists(device) {
			// No partition node but the device is there: filesystem
			// written directly on the whole device
			log.Debug("superfloppy layout, mounting whole device", "device", device)
			partition = device
		} else {
			partition = m.waitForPartition(device)
			if partition == "" {
				return "", fmt.Errorf("no partition appeared for device %s", device)
			}
		}
	}

	tempMount := filepath.Join(m.tempDir(), tempMountPrefix+strconv.Itoa(os.Getpid()))

	var lastErr error
	for _, strategy := range m.strategies(tempMount) {
		mountPoint, err := strategy.attempt(partition)
		if err == nil {
			log.Info("mounted", "partition", partition, "mountPoint", mountPoint, "strategy", strategy.name)
			return mountPoint, nil
		}
		log.Debug("mount strategy failed", "strategy", strategy.name, "partition", partition, "error", err)
		lastErr = err
	}

	// Don't leave an orphaned empty mount point behind
	if err := os.Remove(tempMount); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove temp mount point", "path", tempMount, "error", err)
	}

	return "", fmt.Errorf("mount %s: %w", partition, lastErr)
}

// strategies returns the mount attempts in fallback order: udisks first
// since it needs no privileges and picks its own mount point, then the
// plain mount command into our temp directory, then the same wrapped by
// the elevation broker.
func (m *Mounter) strategies(tempMount string) []mountStrategy {
	return []mountStrategy{
		{
			name: "udisks",
			attempt: func(partition string) (string, error) {
				return m.udisks.Mount(partition)
			},
		},
		{
			name: "mount",
			attempt: func(partition string) (string, error) {
				if err := os.MkdirAll(tempMount, 0755); err != nil {
					return "", fmt.Errorf("create mount point: %w", err)
				}
				_, err := m.runner.Run(sysexec.Cmd{
					Name:    "mount",
					Args:    []string{partition, tempMount},
					Timeout: mountToolTimeout,
				})
				if err != nil {
					return "", err
				}
				return tempMount, nil
			},
		},
		{
			name: "elevated mount",
			attempt: func(partition string) (string, error) {
				_, err := m.runner.Run(sysexec.Cmd{
					Name:    "mount",
					Args:    []string{partition, tempMount},
					Timeout: elevatedToolTimeout,
					Elevate: true,
				})
				if err != nil {
					return "", err
				}
				return tempMount, nil
			},
		},
	}
}

// waitForPartition waits for the device's first partition node to show
// up, typically right after a partition-table rewrite. Unclassified
// devices get a brief second chance under the pN convention.
func (m *Mounter) waitForPartition(device string) string {
	partition := blockdev.PartitionPath(device)
	if m.Waiter.WaitReady(partition, partitionWaitTimeout) {
		return partition
	}

	if blockdev.DeviceFamily(device) == blockdev.FamilyOther {
		alt := blockdev.AltPartitionPath(device)
		if m.Waiter.WaitReady(alt, altPartitionWaitTimeout) {
			log.Debug("found partition under alternate naming", "partition", alt)
			return alt
		}
	}

	return ""
}

func (m *Mounter) tempDir() string {
	if m.TempDir != "" {
		return m.TempDir
	}
	return os.TempDir()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
