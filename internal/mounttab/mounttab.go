// Package mounttab reads live mount state from the kernel-exposed mount
// tables. State is re-read on every query and never cached, since mounts
// can change between any two operations.
package mounttab

import "errors"

// DefaultSources are the mount tables consulted in priority order.
// /proc/1/mounts sees the init mount namespace, which stays correct when
// the process itself was re-executed under an elevation broker;
// /proc/mounts and /etc/mtab are increasingly local fallbacks.
var DefaultSources = []string{"/proc/1/mounts", "/proc/mounts", "/etc/mtab"}

// ErrNoSource is returned when none of the mount table sources could be
// read. It is a distinct condition from "device not mounted".
var ErrNoSource = errors.New("no mount table source readable")

// Entry is one live mount record: a source device and where it is
// mounted.
type Entry struct {
	Device     string
	MountPoint string
}

// Table answers mount-state queries against an ordered list of sources.
type Table struct {
	sources []string
}

// New creates a Table reading the given sources; with none given it uses
// DefaultSources.
func New(sources ...string) *Table {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	return &Table{sources: sources}
}

// Entries returns the mount records from the first source that is
// readable and non-empty. Unreadable sources are skipped rather than
// treated as an empty mount table.
func (t *Table) Entries() ([]Entry, error) {
	for _, source := range t.sources {
		entries, readable := parseFile(source)
		if !readable {
			continue
		}
		return entries, nil
	}
	return nil, ErrNoSource
}

// MountPointOf returns where the given source path is mounted, or ""
// when it is not mounted. Matching is by exact source-path equality.
func (t *Table) MountPointOf(source string) (string, error) {
	entries, err := t.Entries()
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if e.Device == source {
			return e.MountPoint, nil
		}
	}
	return "", nil
}
