// Package netmon models host network availability. On mobile hosts the
// platform supplies events over the bridge; PollingMonitor covers desktop
// hosts by watching interface state.
package netmon

// Handle identifies the network a socket should be bound to. On desktop
// hosts it is the interface name; on mobile it mirrors the platform's
// network handle.
type Handle string

type EventKind int

const (
	// Available fires when a usable default network (re)appears.
	Available EventKind = iota
	// Lost fires when the current network goes away but another may follow.
	Lost
	// Changed fires when the network type flips (e.g. wifi to cellular).
	Changed
	// Unavailable fires when no network is usable at all.
	Unavailable
)

func (k EventKind) String() string {
	switch k {
	case Available:
		return "available"
	case Lost:
		return "lost"
	case Changed:
		return "changed"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind       EventKind
	Handle     Handle // set for Available
	IsWifi     bool   // set for Changed
	IsCellular bool   // set for Changed
}

// Monitor is a stream of network transitions. Close releases the
// underlying watcher and closes the event channel.
type Monitor interface {
	Events() <-chan Event
	Close() error
}
