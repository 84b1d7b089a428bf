package netmon

import (
	"net"
	"sync"
	"time"
)

const defaultPollInterval = 3 * time.Second

// PollingMonitor derives Available/Unavailable transitions by polling the
// host's interface table. It emits an event only when the availability
// state or the chosen interface changes.
type PollingMonitor struct {
	events   chan Event
	interval time.Duration
	list     func() ([]net.Interface, error)
	addrs    func(net.Interface) ([]net.Addr, error)
	stopCh   chan struct{}
	once     sync.Once
}

func NewPollingMonitor(interval time.Duration) *PollingMonitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	m := &PollingMonitor{
		events:   make(chan Event, 4),
		interval: interval,
		list:     net.Interfaces,
		addrs:    func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		stopCh:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *PollingMonitor) Events() <-chan Event { return m.events }

func (m *PollingMonitor) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}

func (m *PollingMonitor) loop() {
	defer close(m.events)

	var (
		available bool
		current   Handle
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		handle, up := m.probe()
		switch {
		case up && (!available || handle != current):
			available, current = true, handle
			m.emit(Event{Kind: Available, Handle: handle})
		case !up && available:
			available, current = false, ""
			m.emit(Event{Kind: Unavailable})
		}

		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// probe picks the first up, non-loopback interface carrying an address.
func (m *PollingMonitor) probe() (Handle, bool) {
	ifaces, err := m.list()
	if err != nil {
		return "", false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := m.addrs(iface)
		if err != nil || len(addrs) == 0 {
			continue
		}
		return Handle(iface.Name), true
	}
	return "", false
}

func (m *PollingMonitor) emit(ev Event) {
	select {
	case m.events <- ev:
	default: // slow consumer; drop rather than block the poll loop
	}
}
