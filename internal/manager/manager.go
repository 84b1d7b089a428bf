// Package manager orchestrates the protocol session lifecycle: one state
// machine, one optional live session, and a statistics sampler. All
// lifecycle operations are serialized; callers observe a single current
// state and never a torn update.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vlesslink/internal/config"
	"vlesslink/internal/metrics"
	"vlesslink/internal/protocol"
	"vlesslink/internal/session"
	"vlesslink/internal/transport"
	"vlesslink/internal/vault"
)

// ErrBusy is returned when connect is called while a connection attempt
// or live connection already exists.
var ErrBusy = errors.New("connect rejected: already connecting or connected")

const defaultSampleInterval = 2 * time.Second

// ProfileStore resolves profiles by id. *config.Config satisfies it.
type ProfileStore interface {
	Profile(id string) (*config.Profile, bool)
}

// Conn is the slice of a protocol session the manager drives. It exists
// so tests can substitute a stub for the real session.
type Conn interface {
	Connect(ctx context.Context, host string, port uint16) error
	Forward(p []byte) error
	Pull(p []byte) (int, error)
	Counters() (in, out uint64)
	HandshakeRTT() time.Duration
	Close() error
}

// SessionFactory builds a fresh session for one connection attempt.
type SessionFactory func(p *config.Profile, cred uuid.UUID) (Conn, error)

// DefaultSessionFactory wires the real transport and codec for a profile.
func DefaultSessionFactory(dial transport.DialFunc, bindDevice func() string) SessionFactory {
	return func(p *config.Profile, cred uuid.UUID) (Conn, error) {
		cfg := p.BuildTransport()
		cfg.Dial = dial
		if bindDevice != nil {
			cfg.BindDevice = bindDevice()
		}
		tr, err := transport.New(cfg)
		if err != nil {
			return nil, err
		}
		return session.New(tr, protocol.NewCodec(cred, p.FlowMode())), nil
	}
}

type Manager struct {
	profiles   ProfileStore
	vault      vault.Vault
	newSession SessionFactory
	sampleEach time.Duration

	// onManualDisconnect tells the reconnect supervisor to stand down.
	// It is a plain callback, not a back-reference: the manager owns no
	// supervisor state.
	onManualDisconnect func()

	mu         sync.Mutex
	state      State
	sess       Conn
	cancelSess context.CancelFunc
	gen        uint64 // bumped on every lifecycle op; stale goroutines check it
	stats      Statistics
	lastIn     uint64
	lastOut    uint64
	stopSample chan struct{}

	subMu sync.Mutex
	subs  []chan State
}

// Option tweaks manager construction.
type Option func(*Manager)

func WithSampleInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sampleEach = d
		}
	}
}

func WithManualDisconnectHook(fn func()) Option {
	return func(m *Manager) { m.onManualDisconnect = fn }
}

func New(profiles ProfileStore, v vault.Vault, factory SessionFactory, opts ...Option) *Manager {
	m := &Manager{
		profiles:   profiles,
		vault:      v,
		newSession: factory,
		sampleEach: defaultSampleInterval,
		state:      Disconnected{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns an always-current state channel. The channel holds at
// most one value: intermediate states may be coalesced, but the latest
// state is always observable. The returned func cancels the subscription.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	// Registration and initial delivery happen under m.mu so no publish
	// can interleave: the buffer is empty, the send cannot block, and a
	// state published later can never be displaced by the initial value.
	m.mu.Lock()
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	ch <- m.state
	m.subMu.Unlock()
	m.mu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, c := range m.subs {
			if c == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// publish swaps the current state and fans it out. Callers hold m.mu.
func (m *Manager) publish(st State) {
	m.state = st
	metrics.SetState(st.Name())

	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- st:
		default:
			// Replace the stale pending value with the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
	m.subMu.Unlock()
}

// Connect resolves the profile and credential and starts a connection
// attempt. It is rejected while a connect is in flight or a connection is
// live; errors during the attempt surface as the Error state.
func (m *Manager) Connect(profileID string) error {
	m.mu.Lock()
	switch m.state.(type) {
	case Connecting, Connected, Disconnecting:
		m.mu.Unlock()
		return ErrBusy
	}

	p, ok := m.profiles.Profile(profileID)
	if !ok {
		err := fmt.Errorf("unknown profile %q", profileID)
		m.publish(Errored{Reason: err.Error()})
		m.mu.Unlock()
		return err
	}
	cred, err := m.vault.Credential(profileID)
	if err != nil {
		// Vault failures are not retried automatically: a missing
		// credential will not appear on its own.
		reason := fmt.Sprintf("credential lookup for profile %q failed: %v", profileID, err)
		m.publish(Errored{Reason: reason, Transient: false})
		m.mu.Unlock()
		return errors.New(reason)
	}
	sess, err := m.newSession(p, cred)
	if err != nil {
		reason := redact(fmt.Sprintf("session setup failed: %v", err), cred)
		m.publish(Errored{Reason: reason})
		m.mu.Unlock()
		return errors.New(reason)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.sess = sess
	m.cancelSess = cancel
	m.gen++
	gen := m.gen
	m.publish(Connecting{ProfileID: profileID})
	m.mu.Unlock()

	go m.runConnect(ctx, gen, p, cred, sess)
	return nil
}

func (m *Manager) runConnect(ctx context.Context, gen uint64, p *config.Profile, cred uuid.UUID, sess Conn) {
	err := sess.Connect(ctx, p.Endpoint.Hostname, p.Endpoint.Port)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// A disconnect (or a newer connect) superseded this attempt.
		_ = sess.Close()
		return
	}

	if err != nil {
		_ = sess.Close()
		m.sess = nil
		m.cancelSess = nil
		metrics.IncConnectFailures()
		m.publish(Errored{Reason: redact(err.Error(), cred), Transient: true})
		return
	}

	m.lastIn, m.lastOut = 0, 0
	m.stats = Statistics{
		ConnectedSince:  time.Now(),
		LastRoundtripMs: uint64(sess.HandshakeRTT().Milliseconds()),
	}
	metrics.IncConnects()
	metrics.SetHandshakeRTT(sess.HandshakeRTT())
	m.stopSample = make(chan struct{})
	go m.sampleLoop(gen, m.stopSample)
	m.publish(Connected{Stats: m.stats})
	log.Printf("connected to profile %q (%s:%d)", p.ID, p.Endpoint.Hostname, p.Endpoint.Port)
}

// Disconnect tears down local resources unconditionally. It interrupts an
// in-flight connect rather than waiting for it to time out, and always
// ends in Disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	switch m.state.(type) {
	case Disconnected:
		m.mu.Unlock()
		m.notifyManualDisconnect()
		return
	}
	m.gen++
	if m.cancelSess != nil {
		m.cancelSess()
		m.cancelSess = nil
	}
	if m.stopSample != nil {
		close(m.stopSample)
		m.stopSample = nil
	}
	sess := m.sess
	m.sess = nil
	m.publish(Disconnecting{})
	if sess != nil {
		_ = sess.Close()
	}
	m.publish(Disconnected{})
	m.mu.Unlock()

	m.notifyManualDisconnect()
}

func (m *Manager) notifyManualDisconnect() {
	if m.onManualDisconnect != nil {
		m.onManualDisconnect()
	}
}

// Fail records a session failure observed on the data path (peer closed,
// transport error) and transitions Connected -> Error.
func (m *Manager) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.(Connected); !ok {
		return
	}
	m.gen++
	if m.cancelSess != nil {
		m.cancelSess()
		m.cancelSess = nil
	}
	if m.stopSample != nil {
		close(m.stopSample)
		m.stopSample = nil
	}
	if m.sess != nil {
		_ = m.sess.Close()
		m.sess = nil
	}
	metrics.IncSessionFailures()
	m.publish(Errored{Reason: err.Error(), Transient: true})
}

// Session returns the live session, or nil outside Connected. The caller
// must treat it as borrowed: the manager remains the owner.
func (m *Manager) Session() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.(Connected); !ok {
		return nil
	}
	return m.sess
}

// Statistics returns the last sampled statistics. The second return is
// false outside Connected. Never blocks on the data path.
func (m *Manager) Statistics() (Statistics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.(Connected); !ok {
		return Statistics{}, false
	}
	return m.stats, true
}

// sampleLoop recomputes rates on a fixed cadence, independent of the
// data path.
func (m *Manager) sampleLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(m.sampleEach)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sample(gen)
		}
	}
}

func (m *Manager) sample(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.sess == nil {
		return
	}
	if _, ok := m.state.(Connected); !ok {
		return
	}

	in, out := m.sess.Counters()
	interval := m.sampleEach.Seconds()
	m.stats.DownloadRateBps = uint64(float64(in-m.lastIn) / interval)
	m.stats.UploadRateBps = uint64(float64(out-m.lastOut) / interval)
	m.stats.BytesReceived = in
	m.stats.BytesSent = out
	m.lastIn, m.lastOut = in, out

	metrics.SetTraffic(in, out)
	m.publish(Connected{Stats: m.stats})
}

// redact strips the credential from user-facing failure text. Redaction
// happens here, where the reason is constructed, not in logging.
func redact(reason string, cred uuid.UUID) string {
	return strings.ReplaceAll(reason, cred.String(), "[redacted]")
}
