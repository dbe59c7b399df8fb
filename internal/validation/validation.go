// Package validation checks operation arguments at the orchestrator
// boundary, before any device operation runs.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateDevicePath validates a whole-device path argument. Operations
// assume a non-empty absolute /dev path; existence is a point-in-time
// fact checked by the operations themselves.
func ValidateDevicePath(path string) error {
	if path == "" {
		return fmt.Errorf("device path must not be empty")
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("device path %q must be absolute", path)
	}

	if !strings.HasPrefix(path, "/dev/") {
		return fmt.Errorf("device path %q must be under /dev", path)
	}

	return nil
}

// ValidateMountPoint validates a mount point argument.
func ValidateMountPoint(path string) error {
	if path == "" {
		return fmt.Errorf("mount point must not be empty")
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("mount point %q must be absolute", path)
	}

	return nil
}
