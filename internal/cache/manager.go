package cache

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options tune the cache manager.
type Options struct {
	TTL           time.Duration // snapshot lifetime, default 1 hour
	MaxEntries    int           // LRU bound, default 128
	SweepInterval time.Duration // periodic expiry sweep, default 10 minutes
	Logger        *slog.Logger
	Clock         func() time.Time // injectable for tests
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = 128
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 10 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Manager fronts a Store with TTL expiry (lazy on access plus a periodic
// sweep), an LRU entry bound, and keyed single-flight so concurrent scans
// racing on one key compute a snapshot once. Store failures degrade to
// cache misses; they never block the pipeline.
type Manager struct {
	store Store
	opts  Options

	group singleflight.Group

	mu      sync.Mutex
	sweeper *time.Ticker
	done    chan struct{}
}

// NewManager wraps a store.
func NewManager(store Store, opts Options) *Manager {
	opts.defaults()
	return &Manager{store: store, opts: opts}
}

// Get returns a live snapshot for the key, if any. Expired entries are
// evicted lazily here.
func (m *Manager) Get(key string) (*Snapshot, bool) {
	snap, err := m.store.Get(key)
	if err == ErrMiss {
		return nil, false
	}
	if err != nil {
		m.opts.Logger.Warn("snapshot store read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	now := m.opts.Clock()
	if now.Sub(snap.CreatedAt) >= m.opts.TTL {
		if err := m.store.Delete(key); err != nil {
			m.opts.Logger.Warn("failed to evict expired snapshot", "key", key, "error", err)
		}
		return nil, false
	}
	if err := m.store.Touch(key, now); err != nil {
		m.opts.Logger.Warn("failed to record snapshot access", "key", key, "error", err)
	}
	return snap, true
}

// Put stores a snapshot and enforces the LRU bound.
func (m *Manager) Put(snap *Snapshot) {
	if err := m.store.Put(snap); err != nil {
		m.opts.Logger.Warn("failed to persist snapshot", "key", snap.Key, "error", err)
		return
	}
	m.evictOverflow()
}

// Do returns the cached snapshot for key, or computes one. Concurrent
// callers with the same key share a single computation; distinct keys
// proceed unimpeded.
func (m *Manager) Do(key string, compute func() (*Snapshot, error)) (*Snapshot, bool, error) {
	if snap, ok := m.Get(key); ok {
		return snap, true, nil
	}

	cached := true
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		// Recheck: another caller may have just stored it.
		if snap, ok := m.Get(key); ok {
			return snap, nil
		}
		cached = false
		snap, err := compute()
		if err != nil {
			return nil, err
		}
		m.Put(snap)
		return snap, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Snapshot), cached, nil
}

// Invalidate drops one key.
func (m *Manager) Invalidate(key string) {
	if err := m.store.Delete(key); err != nil {
		m.opts.Logger.Warn("failed to invalidate snapshot", "key", key, "error", err)
	}
}

// Sweep removes expired entries now. Returns how many were evicted.
func (m *Manager) Sweep() int {
	entries, err := m.store.Entries()
	if err != nil {
		m.opts.Logger.Warn("snapshot sweep failed", "error", err)
		return 0
	}
	now := m.opts.Clock()
	evicted := 0
	for _, e := range entries {
		if now.Sub(e.CreatedAt) >= m.opts.TTL {
			if err := m.store.Delete(e.Key); err == nil {
				evicted++
			}
		}
	}
	return evicted
}

func (m *Manager) evictOverflow() {
	count, err := m.store.Count()
	if err != nil || count <= m.opts.MaxEntries {
		return
	}
	entries, err := m.store.Entries()
	if err != nil {
		return
	}
	// Entries come oldest-access first; drop from the front.
	for _, e := range entries[:count-m.opts.MaxEntries] {
		if err := m.store.Delete(e.Key); err != nil {
			m.opts.Logger.Warn("failed to evict snapshot", "key", e.Key, "error", err)
		}
	}
}

// StartSweeper begins the periodic expiry sweep, bounding memory across
// many projects sharing one process.
func (m *Manager) StartSweeper() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeper != nil {
		return
	}
	m.sweeper = time.NewTicker(m.opts.SweepInterval)
	m.done = make(chan struct{})
	go func() {
		for {
			select {
			case <-m.sweeper.C:
				m.Sweep()
			case <-m.done:
				return
			}
		}
	}()
}

// Close stops the sweeper and closes the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.sweeper != nil {
		m.sweeper.Stop()
		close(m.done)
		m.sweeper = nil
	}
	m.mu.Unlock()
	return m.store.Close()
}
