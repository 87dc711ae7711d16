// Package cache provides the bounded, process-local file content cache used
// by a discovery run. Entries are validated against the file's modification
// time on every hit and evicted least-recently-used first.
package cache

import (
	"container/list"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config bounds the cache.
type Config struct {
	MaxMemoryBytes       int64 // Ceiling on resident content bytes
	MaxFiles             int   // Ceiling on entry count
	MaxFileSize          int64 // Files above this size are never cached
	EvictionBatchPercent int   // Share of entries evicted at once when a ceiling is hit
}

// DefaultConfig returns the default cache bounds (100 MB, 5000 files, 1 MiB files, 10% batches).
func DefaultConfig() Config {
	return Config{
		MaxMemoryBytes:       100 << 20,
		MaxFiles:             5000,
		MaxFileSize:          1 << 20,
		EvictionBatchPercent: 10,
	}
}

// Stats tracks cache performance.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Evictions     int64   `json:"evictions"`
	Invalidations int64   `json:"invalidations"`
	Skipped       int64   `json:"skipped"`
	Entries       int     `json:"entries"`
	MemoryBytes   int64   `json:"memoryBytes"`
	HitRate       float64 `json:"hitRate"`
}

// String returns a one-line summary of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d evictions=%d invalidations=%d skipped=%d entries=%d memory=%dB hitRate=%.2f",
		s.Hits, s.Misses, s.Evictions, s.Invalidations, s.Skipped, s.Entries, s.MemoryBytes, s.HitRate)
}

type entry struct {
	path         string
	content      string
	size         int64
	modTime      time.Time
	lastAccessed time.Time
	element      *list.Element // position in LRU list
}

// Cache is a memory-bounded LRU of file contents keyed by path.
// It is safe for concurrent use.
type Cache struct {
	cfg     Config
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used
	memory  int64
	stats   Stats
	loads   singleflight.Group
}

// New creates a cache. Zero fields in cfg fall back to DefaultConfig values.
func New(cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.EvictionBatchPercent <= 0 || cfg.EvictionBatchPercent > 100 {
		cfg.EvictionBatchPercent = def.EvictionBatchPercent
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
}

// Get returns the content of the file at path. A symbolic link, a directory,
// an unreadable file, or a file above MaxFileSize is reported absent.
func (c *Cache) Get(path string) (string, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		c.mu.Lock()
		c.removeLocked(path)
		c.stats.Misses++
		c.mu.Unlock()
		return "", false
	}
	if info.Mode()&fs.ModeSymlink != 0 || !info.Mode().IsRegular() || info.Size() > c.cfg.MaxFileSize {
		c.mu.Lock()
		c.removeLocked(path)
		c.stats.Skipped++
		c.mu.Unlock()
		return "", false
	}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		if e.modTime.Equal(info.ModTime()) {
			e.lastAccessed = time.Now()
			c.lru.MoveToFront(e.element)
			c.stats.Hits++
			content := e.content
			c.mu.Unlock()
			return content, true
		}
		c.removeLocked(path)
		c.stats.Invalidations++
	}
	c.stats.Misses++
	c.mu.Unlock()

	v, err, _ := c.loads.Do(path, func() (any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content := string(data)
		c.mu.Lock()
		c.insertLocked(path, content, info.ModTime())
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return "", false
	}
	return v.(string), true
}

// WarmUp seeds the cache with content the caller already holds, without
// touching the disk. Content above MaxFileSize is ignored.
func (c *Cache) WarmUp(path, content string, modTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int64(len(content)) > c.cfg.MaxFileSize {
		c.stats.Skipped++
		return
	}
	c.removeLocked(path)
	c.insertLocked(path, content, modTime)
}

// Invalidate drops the entry for path. It reports whether an entry existed.
func (c *Cache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.removeLocked(path) {
		return false
	}
	c.stats.Invalidations++
	return true
}

// Clear releases every entry. Counters are kept so a run can report them.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.memory = 0
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	s.MemoryBytes = c.memory
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insertLocked adds an entry, evicting first so both ceilings hold afterwards
// (must hold lock).
func (c *Cache) insertLocked(path, content string, modTime time.Time) {
	size := int64(len(content))
	if size > c.cfg.MaxMemoryBytes {
		c.stats.Skipped++
		return
	}
	if old, ok := c.entries[path]; ok {
		c.lru.Remove(old.element)
		c.memory -= old.size
		delete(c.entries, path)
	}

	if c.exceedsLocked(size) {
		c.evictBatchLocked()
		for c.exceedsLocked(size) && c.evictOneLocked() {
		}
	}

	e := &entry{
		path:         path,
		content:      content,
		size:         size,
		modTime:      modTime,
		lastAccessed: time.Now(),
	}
	e.element = c.lru.PushFront(e)
	c.entries[path] = e
	c.memory += size
}

func (c *Cache) exceedsLocked(size int64) bool {
	return c.memory+size > c.cfg.MaxMemoryBytes || len(c.entries)+1 > c.cfg.MaxFiles
}

// evictBatchLocked evicts EvictionBatchPercent of the entries from the tail.
func (c *Cache) evictBatchLocked() {
	n := len(c.entries) * c.cfg.EvictionBatchPercent / 100
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if !c.evictOneLocked() {
			return
		}
	}
}

// evictOneLocked evicts the least recently used entry.
func (c *Cache) evictOneLocked() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}
	e := back.Value.(*entry)
	c.lru.Remove(back)
	c.memory -= e.size
	delete(c.entries, e.path)
	c.stats.Evictions++
	return true
}

func (c *Cache) removeLocked(path string) bool {
	e, ok := c.entries[path]
	if !ok {
		return false
	}
	c.lru.Remove(e.element)
	c.memory -= e.size
	delete(c.entries, path)
	return true
}
