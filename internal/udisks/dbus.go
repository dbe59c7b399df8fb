package udisks

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/godbus/dbus/v5"

	"github.com/open-imaging/mediaprep/internal/log"
)

const (
	dbusService       = "org.freedesktop.UDisks2"
	dbusRootPath      = "/org/freedesktop/UDisks2"
	dbusBlockPrefix   = "/org/freedesktop/UDisks2/block_devices/"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	dbusFilesystemInterface = "org.freedesktop.UDisks2.Filesystem"
)

// DBusManager implements Manager against the udisks2 daemon's D-Bus API,
// skipping the udisksctl binary entirely.
type DBusManager struct {
	conn      DBusConnection
	connectFn func() (DBusConnection, error) // for reconnection
}

// DBusManagerOption is a functional option for DBusManager
type DBusManagerOption func(*DBusManager)

// WithConnection sets a custom DBus connection (for testing)
func WithConnection(conn DBusConnection) DBusManagerOption {
	return func(m *DBusManager) {
		m.conn = conn
		m.connectFn = nil // disable reconnection when using custom connection
	}
}

// NewDBusManager creates a udisks manager speaking to the system bus.
func NewDBusManager(opts ...DBusManagerOption) (*DBusManager, error) {
	m := &DBusManager{
		connectFn: ConnectSystemBus,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.conn == nil {
		conn, err := m.connectFn()
		if err != nil {
			return nil, fmt.Errorf("connect to system bus: %w", err)
		}
		m.conn = conn
	}

	return m, nil
}

// Close closes the DBus connection
func (m *DBusManager) Close() error {
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// noInteractionOptions suppresses polkit prompts, matching the CLI
// backend's --no-user-interaction behavior.
func noInteractionOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"auth.no_user_interaction": dbus.MakeVariant(true),
	}
}

// Mount mounts the block device's filesystem and returns the mount point
// chosen by udisks.
func (m *DBusManager) Mount(device string) (string, error) {
	obj := m.conn.Object(dbusService, blockObjectPath(device))

	var mountPoint string
	call := obj.Call(dbusFilesystemInterface+".Mount", 0, noInteractionOptions())
	if call.Err != nil {
		return "", fmt.Errorf("udisks mount %s: %w", device, call.Err)
	}
	if err := call.Store(&mountPoint); err != nil {
		return "", fmt.Errorf("store mount result: %w", err)
	}

	log.Debug("mounted via udisks dbus", "device", device, "mountPoint", mountPoint)
	return mountPoint, nil
}

// Unmount finds the block object currently mounted at mountPoint and
// asks udisks to unmount it.
func (m *DBusManager) Unmount(mountPoint string) error {
	path, err := m.findMountedObject(mountPoint)
	if err != nil {
		return err
	}

	obj := m.conn.Object(dbusService, path)
	call := obj.Call(dbusFilesystemInterface+".Unmount", 0, noInteractionOptions())
	if call.Err != nil {
		return fmt.Errorf("udisks unmount %s: %w", mountPoint, call.Err)
	}

	log.Debug("unmounted via udisks dbus", "mountPoint", mountPoint)
	return nil
}

// getManagedObjects calls GetManagedObjects on the ObjectManager interface
// Returns: map[ObjectPath]map[InterfaceName]map[PropertyName]Variant
func (m *DBusManager) getManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := m.conn.Object(dbusService, dbus.ObjectPath(dbusRootPath))

	var result map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call(dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}

	if err := call.Store(&result); err != nil {
		return nil, fmt.Errorf("store GetManagedObjects result: %w", err)
	}

	return result, nil
}

// findMountedObject locates the block object whose filesystem is mounted
// at the given mount point.
func (m *DBusManager) findMountedObject(mountPoint string) (dbus.ObjectPath, error) {
	objects, err := m.getManagedObjects()
	if err != nil {
		return "", err
	}

	for path, interfaces := range objects {
		fsProps, ok := interfaces[dbusFilesystemInterface]
		if !ok {
			continue
		}

		mountsVariant, ok := fsProps["MountPoints"]
		if !ok {
			continue
		}

		// MountPoints is an array of NUL-terminated byte strings
		mounts, ok := mountsVariant.Value().([][]byte)
		if !ok {
			continue
		}

		for _, raw := range mounts {
			if string(bytes.TrimRight(raw, "\x00")) == mountPoint {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no filesystem mounted at %s", mountPoint)
}

// blockObjectPath maps a device path to its udisks block object path.
// udisks escapes any byte outside [A-Za-z0-9] in the device name as _xx.
func blockObjectPath(device string) dbus.ObjectPath {
	name := filepath.Base(device)

	var encoded []byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			encoded = append(encoded, c)
		} else {
			encoded = append(encoded, fmt.Sprintf("_%02x", c)...)
		}
	}

	return dbus.ObjectPath(dbusBlockPrefix + string(encoded))
}
