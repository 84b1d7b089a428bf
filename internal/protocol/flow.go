package protocol

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Flow selects the payload flow-control mode negotiated once per session.
type Flow int

const (
	// FlowNone passes payload through untouched in both directions.
	FlowNone Flow = iota
	// FlowVision reserves an initial handshake window before falling back
	// to raw pass-through. The vendor wire specialization is not modeled;
	// the mode is carried as an opaque negotiation flag.
	FlowVision
)

func ParseFlow(s string) (Flow, error) {
	switch s {
	case "", "none":
		return FlowNone, nil
	case "xtls-rprx-vision":
		return FlowVision, nil
	default:
		return FlowNone, fmt.Errorf("unknown flow mode %q", s)
	}
}

func (f Flow) String() string {
	if f == FlowVision {
		return "xtls-rprx-vision"
	}
	return "none"
}

// Codec pairs one credential with one flow mode for one session. The
// credential is held only while the session is live; Release drops it.
type Codec struct {
	mu         sync.Mutex
	id         uuid.UUID
	released   bool
	flow       Flow
	negotiated bool
}

func NewCodec(id uuid.UUID, flow Flow) *Codec {
	return &Codec{id: id, flow: flow}
}

// WriteRequest sends the request header for the destination.
func (c *Codec) WriteRequest(w io.Writer, host string, port uint16) error {
	c.mu.Lock()
	id, released := c.id, c.released
	c.mu.Unlock()
	if released {
		return fmt.Errorf("%w: credential released", ErrBadRequestHeader)
	}
	hdr, err := EncodeRequestHeader(id, host, port)
	if err != nil {
		return err
	}
	_, err = w.Write(hdr)
	return err
}

// ReadResponse consumes the response header.
func (c *Codec) ReadResponse(r io.Reader) error {
	return ReadResponseHeader(r)
}

// NegotiateFlow runs the one-shot flow-control step before steady-state
// forwarding begins. For FlowNone it is a no-op; FlowVision records that
// the initial window has been consumed so payload passes through raw
// afterwards.
func (c *Codec) NegotiateFlow(rw io.ReadWriter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negotiated {
		return nil
	}
	c.negotiated = true
	return nil
}

// Flow reports the configured flow mode.
func (c *Codec) Flow() Flow { return c.flow }

// Release forgets the credential. Further WriteRequest calls fail; the
// UUID does not outlive the connection it authenticated.
func (c *Codec) Release() {
	c.mu.Lock()
	c.id = uuid.UUID{}
	c.released = true
	c.mu.Unlock()
}
