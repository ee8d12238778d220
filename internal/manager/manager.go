package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ipnis/internal/engine"
	"ipnis/pkg/types"
)

// SessionCache resolves content paths to compiled sessions.
// *cache.Cache implements it.
type SessionCache interface {
	Acquire(ctx context.Context, p types.Path) (engine.Session, error)
	Engine() engine.Engine
	Snapshot() []types.SessionStatus
	Compiles() uint64
	Evictions() uint64
	Close() error
}

// State represents the lifecycle state of the manager.
type State string

const (
	StateReady  State = "ready"
	StateError  State = "error"
	StateClosed State = "closed"
)

type Manager struct {
	sessions SessionCache
	pub      EventPublisher
	log      zerolog.Logger

	mu      sync.RWMutex
	state   State
	lastErr string

	// Admission: queueCh holds every admitted call, runCh the running ones.
	maxInflight   int
	maxQueueDepth int
	maxWait       time.Duration
	runCh         chan struct{}
	queueCh       chan struct{}

	loads     atomic.Uint64
	calls     atomic.Uint64
	startTime time.Time
}

// SetEventPublisher replaces the event sink. Nil restores the no-op sink.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.pub = p
	m.mu.Unlock()
}

func (m *Manager) publish(name string, p types.Path, fields map[string]any) {
	m.mu.RLock()
	pub := m.pub
	m.mu.RUnlock()
	pub.Publish(Event{Name: name, Path: p, Fields: fields})
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

// Close releases every cached session. Calls after Close fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	m.mu.Unlock()
	return m.sessions.Close()
}

func (m *Manager) closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateClosed
}
