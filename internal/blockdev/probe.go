package blockdev

import (
	"errors"
	"strings"
	"time"

	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/sysexec"
)

// blkidTimeout bounds each filesystem-type query.
const blkidTimeout = 10 * time.Second

// compatibleFilesystems are the on-disk filesystem labels the target
// devices can read. blkid reports FAT32 as "vfat"; both spellings are
// accepted.
var compatibleFilesystems = map[string]bool{
	"vfat":  true,
	"fat32": true,
	"exfat": true,
	"ntfs":  true,
}

// Probe queries the on-disk filesystem type of a device via blkid.
type Probe struct {
	runner sysexec.Runner
}

// NewProbe creates a Probe using the given command runner.
func NewProbe(runner sysexec.Runner) *Probe {
	return &Probe{runner: runner}
}

// DetectFilesystem returns the lowercase filesystem-type label for a
// device, trying its first partition before the whole device so that
// superfloppy layouts (no partition table) are still recognized. An
// empty label with a nil error means nothing was detected.
func (p *Probe) DetectFilesystem(device string) (string, error) {
	for _, target := range probeTargets(device) {
		res, err := p.runner.Run(sysexec.Cmd{
			Name:    "blkid",
			Args:    []string{"-s", "TYPE", "-o", "value", target},
			Timeout: blkidTimeout,
		})
		if err != nil {
			// blkid exits non-zero when it finds nothing; keep probing
			var startErr *sysexec.StartError
			if errors.As(err, &startErr) {
				return "", startErr
			}
			log.Debug("blkid found no filesystem", "target", target, "error", err)
			continue
		}

		if fsType := strings.ToLower(strings.TrimSpace(res.Stdout)); fsType != "" {
			log.Debug("detected filesystem", "target", target, "type", fsType)
			return fsType, nil
		}
	}

	log.Debug("no filesystem detected", "device", device)
	return "", nil
}

// IsCompatible reports whether the device holds a filesystem the target
// hardware can use: FAT32 (reported as vfat), exFAT, or NTFS.
func (p *Probe) IsCompatible(device string) bool {
	fsType, err := p.DetectFilesystem(device)
	if err != nil {
		log.Warn("filesystem detection failed", "device", device, "error", err)
		return false
	}
	return compatibleFilesystems[fsType]
}

// probeTargets lists the paths to query, most specific first. A path
// that already names a first partition is probed as-is.
func probeTargets(device string) []string {
	if strings.HasSuffix(device, "1") || strings.Contains(device, "p1") {
		return []string{device}
	}
	return []string{PartitionPath(device), device}
}
