// Package disk rewrites partition tables and formats partitions on
// removable media by driving the system partitioning and mkfs tools.
package disk

import (
	"fmt"
	"time"

	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/sysexec"
)

const (
	sfdiskTimeout    = 60 * time.Second
	partprobeTimeout = 15 * time.Second
)

// sfdiskScript describes a single partition spanning the whole device
// with a DOS label and the FAT32 LBA type code (0x0c).
const sfdiskScript = "label: dos\ntype=c\n"

// Partitioner destroys a device's partition table and writes a single
// whole-disk FAT32 partition in its place.
type Partitioner struct {
	runner sysexec.Runner
}

// NewPartitioner creates a Partitioner using the given command runner.
func NewPartitioner(runner sysexec.Runner) *Partitioner {
	return &Partitioner{runner: runner}
}

// CreateSinglePartition wipes the device's partition table and creates
// one FAT32-LBA partition covering the whole disk. The device must
// already be unmounted; this is the caller's responsibility.
//
// --force overrides sfdisk's in-use checks, since the device can still
// look busy right after an unmount; --wipe always clears pre-existing
// filesystem signatures unconditionally.
func (p *Partitioner) CreateSinglePartition(device string) error {
	log.Debug("creating partition table", "device", device)

	_, err := p.runner.Run(sysexec.Cmd{
		Name:    "sfdisk",
		Args:    []string{"--force", "--wipe", "always", device},
		Stdin:   sfdiskScript,
		Timeout: sfdiskTimeout,
		Elevate: true,
	})
	if err != nil {
		return fmt.Errorf("create partition on %s: %w", device, err)
	}

	log.Debug("partition table created", "device", device)

	// Ask the kernel to re-read the partition table. Best effort: the
	// readiness wait that follows partitioning covers the cases where
	// partprobe is missing or slow.
	if _, err := p.runner.Run(sysexec.Cmd{
		Name:    "partprobe",
		Args:    []string{device},
		Timeout: partprobeTimeout,
		Elevate: true,
	}); err != nil {
		log.Warn("partition table re-read failed", "device", device, "error", err)
	}

	return nil
}
