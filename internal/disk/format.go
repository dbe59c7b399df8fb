package disk

import (
	"fmt"
	"time"

	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/sysexec"
)

// mkfsTimeout is generous because formatting legitimately takes tens of
// seconds on slow media.
const mkfsTimeout = 120 * time.Second

// Formatter writes a FAT32 filesystem onto a partition.
type Formatter struct {
	runner sysexec.Runner
}

// NewFormatter creates a Formatter using the given command runner.
func NewFormatter(runner sysexec.Runner) *Formatter {
	return &Formatter{runner: runner}
}

// FormatFAT32 formats the partition as FAT32 with the given volume
// label. The label is handed to mkfs.fat verbatim.
func (f *Formatter) FormatFAT32(partition, label string) error {
	log.Debug("formatting partition", "partition", partition, "label", label)

	_, err := f.runner.Run(sysexec.Cmd{
		Name:    "mkfs.fat",
		Args:    []string{"-F", "32", "-n", label, partition},
		Timeout: mkfsTimeout,
		Elevate: true,
	})
	if err != nil {
		return fmt.Errorf("format %s: %w", partition, err)
	}

	log.Info("partition formatted", "partition", partition, "label", label)
	return nil
}
