// Package supervisor schedules reconnection attempts. It observes the
// manager's state stream and the host network monitor, and issues connect
// commands through a one-directional callback; it owns no connection
// resources itself.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"vlesslink/internal/manager"
	"vlesslink/internal/metrics"
	"vlesslink/internal/netmon"
)

// Backoff returns the delay before reconnect attempt n. Non-positive
// attempts clamp to attempt 1; the delay doubles per attempt and caps at
// 60 seconds. Retrying never stops on its own: only Disable does.
func Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n >= 7 {
		return 60 * time.Second
	}
	return (1 << (n - 1)) * time.Second
}

// ConnectFunc asks the manager to start a connection attempt.
type ConnectFunc func(profileID string)

type Supervisor struct {
	connect ConnectFunc
	states  <-chan manager.State
	netEvs  <-chan netmon.Event

	// sleep is swappable so tests do not wait out real backoff delays.
	sleep func(d time.Duration) <-chan time.Time

	mu        sync.Mutex
	armed     bool
	profileID string
	attempts  uint32
	manual    bool
}

func New(connect ConnectFunc, states <-chan manager.State, netEvs <-chan netmon.Event) *Supervisor {
	return &Supervisor{
		connect: connect,
		states:  states,
		netEvs:  netEvs,
		sleep:   func(d time.Duration) <-chan time.Time { return time.After(d) },
	}
}

// Enable arms automatic reconnection for a profile. Arming resets the
// attempt counter and clears any earlier manual-disconnect suppression.
func (s *Supervisor) Enable(profileID string) {
	s.mu.Lock()
	s.armed = true
	s.profileID = profileID
	s.attempts = 0
	s.manual = false
	s.mu.Unlock()
}

// Disable disarms the supervisor. A disabled supervisor never schedules a
// retry, regardless of how many failures it observes afterwards.
func (s *Supervisor) Disable() {
	s.mu.Lock()
	s.armed = false
	s.manual = true
	s.attempts = 0
	s.mu.Unlock()
}

// SuppressRetries marks the most recent disconnect as user-initiated so
// the following state transitions do not trigger a retry. The supervisor
// stays armed; a later Enable or connect success resumes normal behavior.
func (s *Supervisor) SuppressRetries() {
	s.mu.Lock()
	s.manual = true
	s.attempts = 0
	s.mu.Unlock()
}

// Attempts reports the current attempt counter.
func (s *Supervisor) Attempts() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Run consumes state and network events until ctx is done. Call it from
// its own goroutine.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-s.states:
			if !ok {
				return
			}
			s.onState(ctx, st)
		case ev, ok := <-s.netEvs:
			if !ok {
				s.netEvs = nil
				continue
			}
			s.onNetworkEvent(ev)
		}
	}
}

func (s *Supervisor) onState(ctx context.Context, st manager.State) {
	switch e := st.(type) {
	case manager.Connected:
		s.mu.Lock()
		s.attempts = 0
		s.manual = false
		s.mu.Unlock()
	case manager.Errored:
		if !e.Transient {
			log.Printf("not retrying: %s", e.Reason)
			return
		}
		s.scheduleRetry(ctx)
	}
}

func (s *Supervisor) scheduleRetry(ctx context.Context) {
	s.mu.Lock()
	if !s.armed || s.manual {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := int(s.attempts)
	profileID := s.profileID
	s.mu.Unlock()

	delay := Backoff(attempt)
	log.Printf("reconnect attempt %d for profile %q in %s", attempt, profileID, delay)
	metrics.IncReconnects()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.sleep(delay):
			s.fire(profileID)
		}
	}()
}

func (s *Supervisor) onNetworkEvent(ev netmon.Event) {
	if ev.Kind != netmon.Available {
		return
	}
	s.mu.Lock()
	armed, manual, profileID := s.armed, s.manual, s.profileID
	s.mu.Unlock()
	if !armed || manual {
		return
	}
	// The cause of failure (no network) just resolved; skip the backoff.
	log.Printf("network available (%s): reconnecting immediately", ev.Handle)
	s.fire(profileID)
}

func (s *Supervisor) fire(profileID string) {
	s.mu.Lock()
	armed, manual := s.armed, s.manual
	s.mu.Unlock()
	if !armed || manual {
		return
	}
	s.connect(profileID)
}
