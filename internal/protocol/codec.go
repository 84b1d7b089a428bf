// Package protocol implements the VLESS-style wire codec: a one-shot
// authenticated request header, a response header echo, and raw payload
// pass-through afterwards.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
)

// Version is the only protocol version this codec speaks.
const Version = 0

// CmdTCP is the CONNECT-TCP command byte.
const CmdTCP = 0x01

// Address type bytes in the request header.
const (
	AddrIPv4   = 0x01
	AddrDomain = 0x02
	AddrIPv6   = 0x03
)

var (
	ErrBadRequestHeader  = errors.New("malformed request header")
	ErrBadResponseHeader = errors.New("malformed response header")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// EncodeRequestHeader builds the authenticated request header sent exactly
// once, before the first payload byte:
//
//	version(1) | uuid(16) | addons len(1) + addons | command(1) |
//	port(2, BE) | addr type(1) | address
//
// IP literals are encoded as 4- or 16-byte addresses; anything else is a
// length-prefixed domain name.
func EncodeRequestHeader(id uuid.UUID, host string, port uint16) ([]byte, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: empty destination host", ErrBadRequestHeader)
	}

	buf := make([]byte, 0, 24+len(host))
	buf = append(buf, Version)
	buf = append(buf, id[:]...)
	buf = append(buf, 0) // no addons
	buf = append(buf, CmdTCP)
	buf = binary.BigEndian.AppendUint16(buf, port)

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			buf = append(buf, AddrIPv4)
			buf = append(buf, v4...)
		} else {
			buf = append(buf, AddrIPv6)
			buf = append(buf, ip.To16()...)
		}
		return buf, nil
	}

	if len(host) > 255 {
		return nil, fmt.Errorf("%w: domain name too long (%d bytes)", ErrBadRequestHeader, len(host))
	}
	buf = append(buf, AddrDomain, byte(len(host)))
	buf = append(buf, host...)
	return buf, nil
}

// DecodeRequestHeader parses a request header produced by
// EncodeRequestHeader. Used by tests and by server-side tooling; the
// client itself only encodes.
func DecodeRequestHeader(r io.Reader) (id uuid.UUID, host string, port uint16, err error) {
	var fixed [19]byte // version + uuid + addons len
	if _, err = io.ReadFull(r, fixed[:18]); err != nil {
		return id, "", 0, fmt.Errorf("%w: %v", ErrBadRequestHeader, err)
	}
	if fixed[0] != Version {
		return id, "", 0, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, fixed[0])
	}
	copy(id[:], fixed[1:17])

	if addons := int(fixed[17]); addons > 0 {
		if _, err = io.CopyN(io.Discard, r, int64(addons)); err != nil {
			return id, "", 0, fmt.Errorf("%w: short addons: %v", ErrBadRequestHeader, err)
		}
	}

	var tail [4]byte // command + port + addr type
	if _, err = io.ReadFull(r, tail[:]); err != nil {
		return id, "", 0, fmt.Errorf("%w: %v", ErrBadRequestHeader, err)
	}
	if tail[0] != CmdTCP {
		return id, "", 0, fmt.Errorf("%w: unsupported command %#x", ErrBadRequestHeader, tail[0])
	}
	port = binary.BigEndian.Uint16(tail[1:3])

	switch tail[3] {
	case AddrIPv4:
		var a [4]byte
		if _, err = io.ReadFull(r, a[:]); err != nil {
			return id, "", 0, fmt.Errorf("%w: short ipv4: %v", ErrBadRequestHeader, err)
		}
		host = net.IP(a[:]).String()
	case AddrIPv6:
		var a [16]byte
		if _, err = io.ReadFull(r, a[:]); err != nil {
			return id, "", 0, fmt.Errorf("%w: short ipv6: %v", ErrBadRequestHeader, err)
		}
		host = net.IP(a[:]).String()
	case AddrDomain:
		var l [1]byte
		if _, err = io.ReadFull(r, l[:]); err != nil {
			return id, "", 0, fmt.Errorf("%w: short domain length: %v", ErrBadRequestHeader, err)
		}
		name := make([]byte, l[0])
		if _, err = io.ReadFull(r, name); err != nil {
			return id, "", 0, fmt.Errorf("%w: short domain: %v", ErrBadRequestHeader, err)
		}
		host = string(name)
	default:
		return id, "", 0, fmt.Errorf("%w: unknown address type %#x", ErrBadRequestHeader, tail[3])
	}
	return id, host, port, nil
}

// ReadResponseHeader consumes the one-shot response header: a version echo
// and an addons block. Non-empty addons are tolerated and discarded.
func ReadResponseHeader(r io.Reader) error {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponseHeader, err)
	}
	if hdr[0] != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, hdr[0], Version)
	}
	if addons := int(hdr[1]); addons > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(addons)); err != nil {
			return fmt.Errorf("%w: short addons: %v", ErrBadResponseHeader, err)
		}
	}
	return nil
}
