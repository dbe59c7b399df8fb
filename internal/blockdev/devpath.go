// Package blockdev answers point-in-time questions about block devices:
// partition naming, device-node readiness, and on-disk filesystem type.
package blockdev

import "strings"

// Family classifies a device path by its partition-suffix naming
// convention.
type Family int

const (
	// FamilySCSI covers sd-style devices: partitions append a bare index
	// (/dev/sdb -> /dev/sdb1)
	FamilySCSI Family = iota
	// FamilyMMC covers mmcblk devices: partitions append pN
	// (/dev/mmcblk0 -> /dev/mmcblk0p1)
	FamilyMMC
	// FamilyNVMe covers nvme devices: partitions append pN
	FamilyNVMe
	// FamilyOther is anything unrecognized; it falls back to the bare
	// index convention. Known weak spot for loop-style naming schemes.
	FamilyOther
)

func (f Family) String() string {
	switch f {
	case FamilySCSI:
		return "scsi"
	case FamilyMMC:
		return "mmc"
	case FamilyNVMe:
		return "nvme"
	default:
		return "other"
	}
}

// DeviceFamily classifies a whole-device path by substring match.
func DeviceFamily(device string) Family {
	switch {
	case strings.Contains(device, "/dev/sd"):
		return FamilySCSI
	case strings.Contains(device, "/dev/mmcblk"):
		return FamilyMMC
	case strings.Contains(device, "/dev/nvme"):
		return FamilyNVMe
	default:
		return FamilyOther
	}
}

// PartitionPath derives the first-partition path for a whole device. It
// is a pure naming computation; the partition may or may not exist.
func PartitionPath(device string) string {
	switch DeviceFamily(device) {
	case FamilyMMC, FamilyNVMe:
		return device + "p1"
	default:
		return device + "1"
	}
}

// AltPartitionPath returns the opposite-convention guess for unrecognized
// devices, used as a second chance when the default naming never shows up.
func AltPartitionPath(device string) string {
	return device + "p1"
}
