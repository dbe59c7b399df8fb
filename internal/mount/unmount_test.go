package mount

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-imaging/mediaprep/internal/sysexec"
)

// newTestUnmounter disables the real sync and settle delay.
func newTestUnmounter(t *testing.T, runner sysexec.Runner, manager *fakeUdisks) *Unmounter {
	t.Helper()

	origSync := syncFS
	syncFS = func() {}
	t.Cleanup(func() { syncFS = origSync })

	u := NewUnmounter(runner, manager)
	u.SettleDelay = time.Nanosecond
	return u
}

func TestUnmountEmptyMountPoint(t *testing.T) {
	runner := &scriptedRunner{}
	u := newTestUnmounter(t, runner, &fakeUdisks{})

	assert.False(t, u.Unmount(""))
	assert.Empty(t, runner.calls)
}

func TestUnmountManagedPathUsesUdisksFirst(t *testing.T) {
	runner := &scriptedRunner{}
	manager := &fakeUdisks{}
	u := newTestUnmounter(t, runner, manager)

	assert.True(t, u.Unmount("/run/media/user/DATA"))
	require.Len(t, manager.unmountCalls, 1)
	assert.Equal(t, "/run/media/user/DATA", manager.unmountCalls[0])
	assert.Empty(t, runner.calls, "no fallback tool should run when udisks succeeds")
}

func TestUnmountUnmanagedPathSkipsUdisks(t *testing.T) {
	runner := &scriptedRunner{}
	manager := &fakeUdisks{}
	u := newTestUnmounter(t, runner, manager)

	assert.True(t, u.Unmount("/mnt/stick"))
	assert.Empty(t, manager.unmountCalls, "udisks only manages /run/media and /media paths")
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "umount", runner.calls[0].Name)
	assert.Equal(t, []string{"/mnt/stick"}, runner.calls[0].Args)
}

func TestUnmountFallbackOrder(t *testing.T) {
	// Everything fails: the full chain runs in order and the result is
	// false
	runner := &scriptedRunner{fail: func(c sysexec.Cmd) error {
		return &sysexec.ToolError{Tool: c.Name, ExitCode: 32, Output: "target is busy"}
	}}
	manager := &fakeUdisks{unmountErr: fmt.Errorf("udisks unavailable")}
	u := newTestUnmounter(t, runner, manager)

	assert.False(t, u.Unmount("/run/media/user/DATA"))

	require.Len(t, manager.unmountCalls, 1, "udisks goes first for managed paths")
	require.Len(t, runner.calls, 3)

	plain := runner.calls[0]
	assert.Equal(t, []string{"/run/media/user/DATA"}, plain.Args)
	assert.False(t, plain.Elevate)

	elevated := runner.calls[1]
	assert.Equal(t, []string{"/run/media/user/DATA"}, elevated.Args)
	assert.True(t, elevated.Elevate)
	assert.Greater(t, elevated.Timeout, plain.Timeout)

	lazy := runner.calls[2]
	assert.Equal(t, []string{"-l", "/run/media/user/DATA"}, lazy.Args,
		"lazy unmount is the last resort")
}

func TestUnmountLazyFallbackSucceeds(t *testing.T) {
	runner := &scriptedRunner{fail: func(c sysexec.Cmd) error {
		if len(c.Args) > 0 && c.Args[0] == "-l" {
			return nil
		}
		return &sysexec.ToolError{Tool: c.Name, ExitCode: 32, Output: "target is busy"}
	}}
	u := newTestUnmounter(t, runner, &fakeUdisks{})

	assert.True(t, u.Unmount("/mnt/stick"))
}

func TestUnmountRemovesOwnedTempDir(t *testing.T) {
	runner := &scriptedRunner{}
	u := newTestUnmounter(t, runner, &fakeUdisks{})

	var removed []string
	u.removeTempDir = func(path string) { removed = append(removed, path) }

	mountPoint := "/tmp/" + tempMountPrefix + "1234"
	assert.True(t, u.Unmount(mountPoint))
	assert.Equal(t, []string{mountPoint}, removed)
}

func TestUnmountKeepsForeignMountPoints(t *testing.T) {
	runner := &scriptedRunner{}
	u := newTestUnmounter(t, runner, &fakeUdisks{})

	var removed []string
	u.removeTempDir = func(path string) { removed = append(removed, path) }

	assert.True(t, u.Unmount("/mnt/stick"))
	assert.Empty(t, removed, "only mount points under our own naming are removed")
}

func TestUnmountStrategyNames(t *testing.T) {
	// The fallback order is part of the contract; keep it explicit
	u := NewUnmounter(&scriptedRunner{}, &fakeUdisks{})

	var names []string
	for _, s := range u.strategies("/run/media/user/DATA") {
		names = append(names, s.name)
	}
	assert.Equal(t, []string{"udisks", "umount", "elevated umount", "lazy umount"}, names)

	names = names[:0]
	for _, s := range u.strategies("/mnt/stick") {
		names = append(names, s.name)
	}
	assert.Equal(t, []string{"umount", "elevated umount", "lazy umount"}, names)
}

func TestIsManagedMountPoint(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/run/media/user/DATA", true},
		{"/media/DATA", true},
		{"/mnt/stick", false},
		{"/tmp/" + tempMountPrefix + "99", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isManagedMountPoint(tt.path); got != tt.want {
			t.Errorf("isManagedMountPoint(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
