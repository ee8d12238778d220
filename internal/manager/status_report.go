package manager

import (
	"time"

	"ipnis/pkg/types"
)

// Status returns a snapshot suitable for the /status endpoint.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	state, lastErr := m.state, m.lastErr
	m.mu.RUnlock()

	inflight := len(m.runCh)
	queued := len(m.queueCh) - inflight
	if queued < 0 {
		queued = 0
	}
	now := time.Now()
	return types.StatusResponse{
		State:          string(state),
		Engine:         m.sessions.Engine().Name(),
		Sessions:       m.sessions.Snapshot(),
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		LoadsTotal:     m.loads.Load(),
		CallsTotal:     m.calls.Load(),
		CompilesTotal:  m.sessions.Compiles(),
		EvictionsTotal: m.sessions.Evictions(),
		Inflight:       inflight,
		QueueLen:       queued,
		MaxInflight:    m.maxInflight,
		MaxQueueDepth:  m.maxQueueDepth,
		LastError:      lastErr,
	}
}

// Ready reports whether the manager accepts work and the last preload
// succeeded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}
