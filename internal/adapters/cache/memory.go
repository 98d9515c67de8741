package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventcal/core/internal/domain/entities"
)

// Config holds configuration for the view caches
type Config struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Entries kept before least recently used ones are evicted
	CleanupInterval time.Duration // How often expired entries are swept
}

// DefaultConfig provides defaults for view caching
var DefaultConfig = Config{
	TTL:             5 * time.Minute,
	MaxEntries:      256,
	CleanupInterval: time.Minute,
}

type entry struct {
	events     []entities.Event
	expiresAt  time.Time
	accessedAt time.Time
}

// Memory is an in-process view cache with TTL expiry and LRU eviction.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	now     func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemory creates the cache and starts its cleanup goroutine. Call Close
// to stop it.
func NewMemory(cfg Config) *Memory {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig.MaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig.CleanupInterval
	}

	c := &Memory{
		entries:     make(map[string]*entry),
		cfg:         cfg,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]entities.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	e.accessedAt = now
	return cloneEvents(e.events), true
}

func (c *Memory) Set(_ context.Context, key string, events []entities.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &entry{
		events:     cloneEvents(events),
		expiresAt:  now.Add(c.cfg.TTL),
		accessedAt: now,
	}
	if len(c.entries) > c.cfg.MaxEntries {
		c.cleanupLocked()
	}
	return nil
}

func (c *Memory) Invalidate(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	return nil
}

func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine and clears the cache
func (c *Memory) Close() error {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
	return c.Invalidate(context.Background())
}

// cleanupLocked removes expired entries, then the least recently accessed
// ones until the cache is within MaxEntries.
func (c *Memory) cleanupLocked() {
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}

	excess := len(c.entries) - c.cfg.MaxEntries
	if excess <= 0 {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].accessedAt.Before(c.entries[keys[j]].accessedAt)
	})
	for _, key := range keys[:excess] {
		delete(c.entries, key)
	}
}

func (c *Memory) cleanupLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.cleanupLocked()
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

func cloneEvents(events []entities.Event) []entities.Event {
	out := make([]entities.Event, len(events))
	copy(out, events)
	return out
}
