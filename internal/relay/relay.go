// Package relay pumps raw bytes between a local packet source and the
// established tunnel. It owns no connection state; when either side
// fails, the first error wins and the caller decides what to do next.
package relay

import (
	"io"
	"sync"

	"vlesslink/internal/session"
)

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 32*1024)
		return &b
	},
}

// Tunnel is the session-side half of the relay. *session.Session
// satisfies it.
type Tunnel interface {
	Forward(p []byte) error
	Pull(p []byte) (int, error)
}

var _ Tunnel = (*session.Session)(nil)

// Pipe relays traffic in both directions until one side fails or closes.
// It returns the first error observed; the second pump is left to drain
// against the caller's subsequent Close.
func Pipe(local io.ReadWriter, tun Tunnel) error {
	return PipeCounted(local, tun, nil, nil)
}

// PipeCounted is Pipe with per-direction byte callbacks. onUp observes
// bytes moved local -> tunnel, onDown tunnel -> local.
func PipeCounted(local io.ReadWriter, tun Tunnel, onUp, onDown func(int64)) error {
	errCh := make(chan error, 2)
	go func() {
		errCh <- pump(tunnelWriter{tun}, local, onUp)
	}()
	go func() {
		errCh <- pump(local, tunnelReader{tun}, onDown)
	}()
	return <-errCh
}

func pump(dst io.Writer, src io.Reader, onBytes func(int64)) error {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	n, err := io.CopyBuffer(dst, src, *bufp)
	if onBytes != nil {
		onBytes(n)
	}
	if err == io.EOF {
		return nil
	}
	return err
}

type tunnelWriter struct{ t Tunnel }

func (w tunnelWriter) Write(p []byte) (int, error) {
	if err := w.t.Forward(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

type tunnelReader struct{ t Tunnel }

func (r tunnelReader) Read(p []byte) (int, error) {
	return r.t.Pull(p)
}
