package session

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"vlesslink/internal/protocol"
	"vlesslink/internal/transport"
)

// fakeTransport scripts the server side of the handshake: everything the
// session sends lands in sent, Receives drain the canned response.
type fakeTransport struct {
	sent       bytes.Buffer
	response   *bytes.Reader
	connected  bool
	closed     bool
	connectErr error
}

func newFakeTransport(response []byte) *fakeTransport {
	return &fakeTransport{response: bytes.NewReader(response)}
}

func (f *fakeTransport) Connect(ctx context.Context, host string, port uint16) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Send(p []byte) error {
	if !f.connected || f.closed {
		return transport.ErrNotConnected
	}
	f.sent.Write(p)
	return nil
}

func (f *fakeTransport) Receive(p []byte) (int, error) {
	if !f.connected || f.closed {
		return 0, transport.ErrNotConnected
	}
	n, err := f.response.Read(p)
	if err != nil {
		return n, transport.ErrPeerClosed
	}
	return n, nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected && !f.closed }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestConnectRunsHandshake(t *testing.T) {
	id := uuid.MustParse("7c3e36c1-92d4-4a5e-9a71-2f55ab91d33e")
	ft := newFakeTransport([]byte{protocol.Version, 0})
	s := New(ft, protocol.NewCodec(id, protocol.FlowNone))

	if err := s.Connect(context.Background(), "example.com", 443); err != nil {
		t.Fatalf("connect: %v", err)
	}

	gotID, gotHost, gotPort, err := protocol.DecodeRequestHeader(&ft.sent)
	if err != nil {
		t.Fatalf("request header not parseable: %v", err)
	}
	if gotID != id || gotHost != "example.com" || gotPort != 443 {
		t.Errorf("request header = (%s, %s, %d)", gotID, gotHost, gotPort)
	}
}

func TestConnectFailsOnVersionMismatch(t *testing.T) {
	ft := newFakeTransport([]byte{9, 0})
	s := New(ft, protocol.NewCodec(uuid.New(), protocol.FlowNone))

	err := s.Connect(context.Background(), "example.com", 443)
	if err == nil {
		t.Fatal("connect succeeded on version mismatch")
	}
	if !errors.Is(err, protocol.ErrUnsupportedVersion) {
		t.Errorf("err = %v, want ErrUnsupportedVersion", err)
	}
	if !ft.closed {
		t.Error("transport left open after handshake failure")
	}
}

func TestConnectSurfacesTransportError(t *testing.T) {
	ft := newFakeTransport(nil)
	ft.connectErr = transport.ErrConnectFailed
	s := New(ft, protocol.NewCodec(uuid.New(), protocol.FlowNone))

	err := s.Connect(context.Background(), "example.com", 443)
	if !errors.Is(err, transport.ErrConnectFailed) {
		t.Fatalf("err = %v, want ErrConnectFailed", err)
	}

	var serr *Error
	if !errors.As(err, &serr) || serr.Op != "connect" {
		t.Errorf("err = %v, want session connect op", err)
	}
}

func TestForwardAndPullCount(t *testing.T) {
	payload := []byte("tunnel me")
	ft := newFakeTransport(append([]byte{protocol.Version, 0}, payload...))
	s := New(ft, protocol.NewCodec(uuid.New(), protocol.FlowNone))

	if err := s.Connect(context.Background(), "example.com", 443); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := s.Forward([]byte("abc")); err != nil {
		t.Fatalf("forward: %v", err)
	}
	buf := make([]byte, len(payload))
	n, err := s.Pull(buf)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}

	in, out := s.Counters()
	if out != 3 {
		t.Errorf("bytes out = %d, want 3", out)
	}
	if in != uint64(n) {
		t.Errorf("bytes in = %d, want %d", in, n)
	}
}

func TestOperationsBeforeConnect(t *testing.T) {
	s := New(newFakeTransport(nil), protocol.NewCodec(uuid.New(), protocol.FlowNone))

	if err := s.Forward([]byte("x")); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("forward: err = %v, want ErrNotConnected", err)
	}
	if _, err := s.Pull(make([]byte, 1)); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("pull: err = %v, want ErrNotConnected", err)
	}
}

func TestCloseIsIdempotentAndReleasesCredential(t *testing.T) {
	ft := newFakeTransport([]byte{protocol.Version, 0})
	codec := protocol.NewCodec(uuid.New(), protocol.FlowNone)
	s := New(ft, codec)

	if err := s.Connect(context.Background(), "example.com", 443); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	var buf bytes.Buffer
	if err := codec.WriteRequest(&buf, "example.com", 443); err == nil {
		t.Error("credential usable after session close")
	}
	if err := s.Forward([]byte("x")); err == nil {
		t.Error("forward succeeded after close")
	}
}
