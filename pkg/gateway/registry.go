package gateway

import (
	"sync"
	"sync/atomic"
)

// stats are gateway-wide counters.
type stats struct {
	admitted       atomic.Uint64
	rejected       atomic.Uint64
	setupFailures  atomic.Uint64
	completed      atomic.Uint64
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
}

// Stats contains gateway statistics.
type Stats struct {
	ActiveSessions    int    `json:"active_sessions"`
	SessionsAdmitted  uint64 `json:"sessions_admitted"`
	SessionsRejected  uint64 `json:"sessions_rejected"`
	SetupFailures     uint64 `json:"setup_failures"`
	SessionsCompleted uint64 `json:"sessions_completed"`
	FramesReceived    uint64 `json:"frames_received"`
	FramesSent        uint64 `json:"frames_sent"`
}

// registry tracks live connections by session id.
type registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*Connection)}
}

func (r *registry) add(c *Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	return len(r.conns)
}

func (r *registry) remove(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return len(r.conns)
}

func (r *registry) get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *registry) infos() []SessionInfo {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}
	return infos
}
