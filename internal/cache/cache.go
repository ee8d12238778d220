// Package cache keeps compiled model sessions keyed by content path.
//
// Lookups take a short lock. Misses fetch and compile outside the lock, so a
// slow compile never blocks callers asking for other models; concurrent
// misses for the same path share one compile. Failed fetches and compiles
// are never cached.
package cache

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ipnis/internal/engine"
	"ipnis/internal/storage"
	"ipnis/pkg/types"
)

// DefaultLargeObjectThreshold is the blob size above which models are
// shipped as a tar archive holding model.onnx and external weights.
const DefaultLargeObjectThreshold = 2_000_000_000

// Config configures a Cache.
type Config struct {
	Engine  engine.Engine
	Store   storage.Store
	Options engine.Options
	// LargeObjectThreshold in bytes; 0 means DefaultLargeObjectThreshold.
	LargeObjectThreshold uint64
	// MaxEntries bounds the cache with LRU eviction; 0 means unbounded.
	MaxEntries int
	Logger     *zerolog.Logger
}

type entry struct {
	path     types.Path
	session  engine.Session
	compiled time.Time
	lastUsed atomic.Int64
}

func (e *entry) touch() { e.lastUsed.Store(time.Now().Unix()) }

// Cache maps content paths to compiled sessions.
type Cache struct {
	eng       engine.Engine
	store     storage.Store
	opts      engine.Options
	threshold uint64
	log       zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	bounded *lru.Cache

	group     singleflight.Group
	compiles  atomic.Uint64
	evictions atomic.Uint64
}

// New builds a Cache.
func New(cfg Config) (*Cache, error) {
	c := &Cache{
		eng:       cfg.Engine,
		store:     cfg.Store,
		opts:      cfg.Options,
		threshold: cfg.LargeObjectThreshold,
		log:       zerolog.Nop(),
	}
	if c.threshold == 0 {
		c.threshold = DefaultLargeObjectThreshold
	}
	if cfg.Logger != nil {
		c.log = *cfg.Logger
	}
	if cfg.MaxEntries > 0 {
		l, err := lru.NewWithEvict(cfg.MaxEntries, c.onEvict)
		if err != nil {
			return nil, err
		}
		c.bounded = l
	} else {
		c.entries = make(map[string]*entry)
	}
	return c, nil
}

// onEvict runs under the LRU's lock. The session is not closed: callers
// may still be running it, and it is released once unreferenced.
func (c *Cache) onEvict(key, _ interface{}) {
	c.evictions.Add(1)
	evictionsTotal.Inc()
	c.log.Debug().Str("path", key.(string)).Msg("session evicted")
}

// Engine returns the engine sessions are compiled with.
func (c *Cache) Engine() engine.Engine { return c.eng }

// Acquire returns the session for p, fetching and compiling it on first use.
// If ctx ends first, Acquire returns ctx.Err() while the compile finishes in
// the background and is still cached.
func (c *Cache) Acquire(ctx context.Context, p types.Path) (engine.Session, error) {
	key := p.String()
	if e, ok := c.lookup(key); ok {
		lookupsTotal.WithLabelValues("hit").Inc()
		e.touch()
		return e.session, nil
	}
	lookupsTotal.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		return c.populate(context.WithoutCancel(ctx), key, p)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e := res.Val.(*entry)
		e.touch()
		return e.session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) populate(ctx context.Context, key string, p types.Path) (*entry, error) {
	if e, ok := c.lookup(key); ok {
		return e, nil
	}

	start := time.Now()
	src, err := c.fetch(ctx, p)
	if err != nil {
		compilesTotal.WithLabelValues("fetch_error").Inc()
		c.log.Warn().Err(err).Str("path", key).Msg("model fetch failed")
		return nil, &FetchError{Path: p, Err: err}
	}
	sess, err := c.eng.Compile(ctx, src, c.opts)
	if err != nil {
		compilesTotal.WithLabelValues("compile_error").Inc()
		c.log.Warn().Err(err).Str("path", key).Msg("model compile failed")
		return nil, &CompileError{Path: p, Err: err}
	}
	compileDuration.Observe(time.Since(start).Seconds())
	compilesTotal.WithLabelValues("ok").Inc()
	c.compiles.Add(1)

	e := &entry{path: p, session: sess, compiled: time.Now()}
	e.touch()
	winner := c.insert(key, e)
	if winner != e {
		// Someone inserted between our lookup and now; keep theirs.
		_ = sess.Close()
	}
	c.log.Info().
		Str("path", key).
		Str("engine", c.eng.Name()).
		Dur("took", time.Since(start)).
		Msg("model compiled")
	return winner, nil
}

func (c *Cache) fetch(ctx context.Context, p types.Path) (engine.Source, error) {
	if p.Len > c.threshold {
		dir, err := c.store.DownloadOnLocalTar(ctx, p)
		if err != nil {
			return engine.Source{}, err
		}
		return engine.Source{File: filepath.Join(dir, "model.onnx")}, nil
	}
	b, err := c.store.GetRaw(ctx, p)
	if err != nil {
		return engine.Source{}, err
	}
	return engine.Source{Bytes: b}, nil
}

func (c *Cache) lookup(key string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		v, ok := c.bounded.Get(key)
		if !ok {
			return nil, false
		}
		return v.(*entry), true
	}
	e, ok := c.entries[key]
	return e, ok
}

// insert adds e unless key is already present and returns the resident entry.
func (c *Cache) insert(key string, e *entry) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		if v, ok := c.bounded.Get(key); ok {
			return v.(*entry)
		}
		c.bounded.Add(key, e)
		entriesGauge.Set(float64(c.bounded.Len()))
		return e
	}
	if cur, ok := c.entries[key]; ok {
		return cur
	}
	c.entries[key] = e
	entriesGauge.Set(float64(len(c.entries)))
	return e
}

func (c *Cache) all() []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		keys := c.bounded.Keys()
		out := make([]*entry, 0, len(keys))
		for _, k := range keys {
			if v, ok := c.bounded.Peek(k); ok {
				out = append(out, v.(*entry))
			}
		}
		return out
	}
	out := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		return c.bounded.Len()
	}
	return len(c.entries)
}

// Compiles returns the number of successful compiles.
func (c *Cache) Compiles() uint64 { return c.compiles.Load() }

// Evictions returns the number of sessions dropped by the bound.
func (c *Cache) Evictions() uint64 { return c.evictions.Load() }

// Snapshot describes the cached sessions, ordered by path.
func (c *Cache) Snapshot() []types.SessionStatus {
	entries := c.all()
	out := make([]types.SessionStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.SessionStatus{
			Path:         e.path,
			Inputs:       len(e.session.Inputs()),
			Outputs:      len(e.session.Outputs()),
			CompiledUnix: e.compiled.Unix(),
			LastUsedUnix: e.lastUsed.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.Hash < out[j].Path.Hash })
	return out
}

// Close closes every cached session and empties the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	var sessions []engine.Session
	if c.bounded != nil {
		for _, k := range c.bounded.Keys() {
			if v, ok := c.bounded.Peek(k); ok {
				sessions = append(sessions, v.(*entry).session)
			}
		}
		c.bounded.Purge()
	} else {
		for _, e := range c.entries {
			sessions = append(sessions, e.session)
		}
		c.entries = make(map[string]*entry)
	}
	entriesGauge.Set(0)
	c.mu.Unlock()

	var first error
	for _, s := range sessions {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
