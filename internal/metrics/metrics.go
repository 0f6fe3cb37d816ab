package metrics

import (
	"maps"
	"sync"
)

// Event names.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	ConnectionsKicked = "connections_kicked"
	RoomsCreated      = "rooms_created"
	RoomsRemoved      = "rooms_removed"
	InboundMessages   = "inbound_messages"
	InboundRejected   = "inbound_rejected"
	RelayedDirect     = "relayed_direct"
	RelayedRoom       = "relayed_room"
	RelayedVoice      = "relayed_voice"
	FramesDelivered   = "frames_delivered"

	DropNoTarget     = "drop_no_target"
	DropBackpressure = "drop_backpressure"
	DropClosed       = "drop_closed"
	DropRateLimited  = "drop_rate_limited"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if n == 0 {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.m)
}
