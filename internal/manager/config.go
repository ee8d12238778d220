package manager

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

func defaultMaxInflight() int { return runtime.NumCPU() }

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Sessions SessionCache
	// MaxInflight bounds concurrent Session.Run calls across all models.
	MaxInflight int
	// MaxQueueDepth bounds calls waiting for a run slot.
	MaxQueueDepth int
	// MaxWait is how long a call may wait for a slot before it is rejected.
	MaxWait   time.Duration
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		sessions:      cfg.Sessions,
		maxInflight:   cfg.MaxInflight,
		maxQueueDepth: cfg.MaxQueueDepth,
		maxWait:       cfg.MaxWait,
		pub:           cfg.Publisher,
		log:           zerolog.Nop(),
		state:         StateReady,
		startTime:     time.Now(),
	}
	if m.maxInflight <= 0 {
		m.maxInflight = defaultMaxInflight()
	}
	if m.maxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	}
	if m.maxWait <= 0 {
		m.maxWait = defaultMaxWait
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	m.runCh = make(chan struct{}, m.maxInflight)
	m.queueCh = make(chan struct{}, m.maxInflight+m.maxQueueDepth)
	return m
}
