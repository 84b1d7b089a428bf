package manager

import "time"

// State is the closed sum of connection lifecycle states. Exactly one
// value is current at any instant; adding a state means updating every
// switch over this interface.
type State interface {
	Name() string
	sealed()
}

type Disconnected struct{}

type Connecting struct {
	ProfileID string
}

type Connected struct {
	Stats Statistics
}

type Disconnecting struct{}

type Errored struct {
	Reason string
	// Transient marks failures that retrying can fix. Missing credentials
	// and bad profiles stay false: they will not resolve on their own.
	Transient bool
}

func (Disconnected) Name() string  { return "disconnected" }
func (Connecting) Name() string    { return "connecting" }
func (Connected) Name() string     { return "connected" }
func (Disconnecting) Name() string { return "disconnecting" }
func (Errored) Name() string       { return "error" }

func (Disconnected) sealed()  {}
func (Connecting) sealed()    {}
func (Connected) sealed()     {}
func (Disconnecting) sealed() {}
func (Errored) sealed()       {}

// Statistics is the sampled view of the live connection. Counters are
// monotonic; rates are derived per sampling interval.
type Statistics struct {
	BytesReceived   uint64
	BytesSent       uint64
	DownloadRateBps uint64
	UploadRateBps   uint64
	ConnectedSince  time.Time
	LastRoundtripMs uint64
}
