package sysexec

import "os"

// DefaultBroker is the privilege elevation broker used when none is
// configured.
const DefaultBroker = "pkexec"

// Mode says whether a privileged command runs directly or wrapped by the
// elevation broker.
type Mode int

const (
	// Direct runs the command as-is; the process already has the needed
	// privileges.
	Direct Mode = iota
	// Elevated prefixes the command with the broker, which prompts the
	// user for authorization.
	Elevated
)

// Elevator decides per invocation whether privileged commands need the
// elevation broker. The decision is made from the live effective UID on
// every call and never cached, so a privilege change during a long
// session is picked up.
type Elevator struct {
	broker string
	euid   func() int
}

// NewElevator returns an Elevator using the given broker binary. An empty
// broker falls back to DefaultBroker.
func NewElevator(broker string) *Elevator {
	if broker == "" {
		broker = DefaultBroker
	}
	return &Elevator{broker: broker, euid: os.Geteuid}
}

// Mode returns the current privilege mode.
func (e *Elevator) Mode() Mode {
	if e.euid() == 0 {
		return Direct
	}
	return Elevated
}

// Wrap rewrites an argv for the current privilege mode. Under Elevated it
// prefixes the broker; under Direct the argv is returned unchanged. The
// boolean reports whether the broker was applied.
func (e *Elevator) Wrap(name string, args []string) (string, []string, bool) {
	if e.Mode() == Direct {
		return name, args, false
	}
	return e.broker, append([]string{name}, args...), true
}
