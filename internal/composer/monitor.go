package composer

import "sync"

// Monitor reports network reachability. Events delivers online/offline
// transitions; Online answers the current state.
type Monitor interface {
	Online() bool
	Events() <-chan bool
}

// FlagMonitor is a manually toggled Monitor. The CLI flips it from user
// commands; tests flip it directly.
type FlagMonitor struct {
	mu     sync.Mutex
	online bool
	events chan bool
}

func NewFlagMonitor(online bool) *FlagMonitor {
	return &FlagMonitor{online: online, events: make(chan bool, 4)}
}

func (m *FlagMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *FlagMonitor) Events() <-chan bool {
	return m.events
}

// SetOnline records the new state and emits an event on change. Emission
// never blocks; a slow consumer drops intermediate transitions.
func (m *FlagMonitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		select {
		case m.events <- online:
		default:
		}
	}
}
