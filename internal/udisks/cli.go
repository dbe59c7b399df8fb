package udisks

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/sysexec"
)

// udisksctlTimeout bounds each udisksctl invocation. udisksctl runs
// without user interaction, so no human-latency allowance is needed.
const udisksctlTimeout = 30 * time.Second

// mountedPattern matches udisksctl's success output, e.g.
// "Mounted /dev/sdb1 at /run/media/user/LABEL." (the trailing period
// varies between udisks versions).
var mountedPattern = regexp.MustCompile(`Mounted .* at (.+)`)

// CLIManager implements Manager using the udisksctl CLI
type CLIManager struct {
	runner sysexec.Runner
}

// NewCLIManager creates a udisksctl-backed manager.
func NewCLIManager(runner sysexec.Runner) *CLIManager {
	return &CLIManager{runner: runner}
}

// Mount mounts the device via udisksctl and parses the chosen mount
// point out of its human-readable output.
func (m *CLIManager) Mount(device string) (string, error) {
	res, err := m.runner.Run(sysexec.Cmd{
		Name:    "udisksctl",
		Args:    []string{"mount", "-b", device, "--no-user-interaction"},
		Timeout: udisksctlTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("udisksctl mount %s: %w", device, err)
	}

	match := mountedPattern.FindStringSubmatch(strings.TrimSpace(res.Stdout))
	if match == nil {
		return "", fmt.Errorf("unexpected udisksctl output: %q", strings.TrimSpace(res.Stdout))
	}

	mountPoint := strings.TrimSuffix(strings.TrimSpace(match[1]), ".")
	log.Debug("mounted via udisksctl", "device", device, "mountPoint", mountPoint)
	return mountPoint, nil
}

// Unmount unmounts the mount point via udisksctl, trying the -p form
// first and the --mount-point form second (older udisks releases only
// accept one of the two).
func (m *CLIManager) Unmount(mountPoint string) error {
	var lastErr error
	for _, args := range [][]string{
		{"unmount", "-p", mountPoint, "--no-user-interaction"},
		{"unmount", "--mount-point", mountPoint, "--no-user-interaction"},
	} {
		_, err := m.runner.Run(sysexec.Cmd{
			Name:    "udisksctl",
			Args:    args,
			Timeout: udisksctlTimeout,
		})
		if err == nil {
			log.Debug("unmounted via udisksctl", "mountPoint", mountPoint)
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("udisksctl unmount %s: %w", mountPoint, lastErr)
}
