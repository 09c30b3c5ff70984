// Package ttscache implements spec §4.2: a content-addressed LRU cache of
// synthesised audio buffers, a disk-backed "baked phrase" store, and the
// phrase-label random-pick path the session orchestrator uses for
// heartbeat-triggered silence prompts.
package ttscache

import (
	"math/rand"
	"sync"
	"time"

	"github.com/openclaw/voicebridge/pkg/metrics"
)

// Entry is one cached synthesis result.
type Entry struct {
	Buffer     []byte
	LastUsedAt time.Time
	SizeBytes  int
	IsBakedOgg bool
}

// Cache is a process-wide-capable (but normally per-session-injected) LRU
// of TTS buffers keyed by content hash, with phrase-label sets layered on
// top for the heartbeat's random-pick path. The zero value is not usable;
// construct with New.
type Cache struct {
	mu           sync.Mutex
	entries      map[string]*Entry
	totalBytes   int
	labelSets    map[string]map[string]struct{}
	lastReturned map[string]string
	configHash   string
	metrics      *metrics.Metrics
	rng          *rand.Rand
}

// New builds an empty Cache. m may be nil (metrics become no-ops).
func New(m *metrics.Metrics) *Cache {
	return &Cache{
		entries:      make(map[string]*Entry),
		labelSets:    make(map[string]map[string]struct{}),
		lastReturned: make(map[string]string),
		metrics:      m,
		rng:          rand.New(rand.NewSource(randSeed())),
	}
}

// randSeed is a package-level time read at construction only, not per call:
// acceptable since Cache.New runs once per session, not in a hot loop.
func randSeed() int64 { return time.Now().UnixNano() }

func (c *Cache) incMetric(name string) {
	if c.metrics != nil {
		c.metrics.Inc(name)
	}
}

func (c *Cache) setGauge(name string, v int64) {
	if c.metrics != nil {
		c.metrics.SetGauge(name, v)
	}
}

// Get looks up key, touching lastUsedAt on hit. Hit/miss counters are the
// TTS cache counters, not the pipeline's tts.requests counter (that one is
// incremented by the pipeline only on a miss, since a hit never calls TTS).
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.incMetric(metrics.CounterTTSCacheMisses)
		return nil, false
	}
	e.LastUsedAt = time.Now()
	c.incMetric(metrics.CounterTTSCacheHits)
	return e.Buffer, true
}

// Set inserts or replaces key, then evicts least-recently-used entries one
// at a time until totalBytes fits maxSizeMb or only the new entry remains
// (a single buffer larger than the budget stays cached on its own).
func (c *Cache) Set(key string, buffer []byte, maxSizeMb int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, buffer, maxSizeMb, false)
}

// setBaked is Set's counterpart for baked-phrase loads, which also mark the
// entry as OGG Opus without going through the public Set signature (baked
// loads never race a concurrent eviction pass mid-construction).
func (c *Cache) setBaked(key string, buffer []byte, maxSizeMb int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, buffer, maxSizeMb, true)
}

func (c *Cache) setLocked(key string, buffer []byte, maxSizeMb int, bakedOgg bool) {
	if existing, ok := c.entries[key]; ok {
		c.totalBytes += len(buffer) - existing.SizeBytes
	} else {
		c.totalBytes += len(buffer)
	}
	c.entries[key] = &Entry{
		Buffer:     buffer,
		LastUsedAt: time.Now(),
		SizeBytes:  len(buffer),
		IsBakedOgg: bakedOgg,
	}

	budget := maxSizeMb * 1_048_576
	for c.totalBytes > budget && len(c.entries) > 1 {
		c.evictOldestLocked(key)
	}
	c.setGauge(metrics.GaugeTTSCacheSizeBytes, int64(c.totalBytes))
}

// evictOldestLocked drops the least-recently-used entry, skipping the entry
// just inserted under keep so a single oversized buffer cannot evict itself.
func (c *Cache) evictOldestLocked(keep string) {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if k == keep {
			continue
		}
		if first || e.LastUsedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.LastUsedAt
			first = false
		}
	}
	if first {
		return
	}
	c.removeLocked(oldestKey)
}

func (c *Cache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.totalBytes -= e.SizeBytes
	delete(c.entries, key)
	for _, set := range c.labelSets {
		delete(set, key)
	}
	for label, last := range c.lastReturned {
		if last == key {
			delete(c.lastReturned, label)
		}
	}
}

// Clear drops every entry, label set, and baked-key tracking.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.labelSets = make(map[string]map[string]struct{})
	c.lastReturned = make(map[string]string)
	c.totalBytes = 0
	c.setGauge(metrics.GaugeTTSCacheSizeBytes, 0)
}

// RegisterPhraseKey associates key with a phrase label ("greetings" or
// "check-ins").
func (c *Cache) RegisterPhraseKey(key, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.labelSets[label]
	if !ok {
		set = make(map[string]struct{})
		c.labelSets[label] = set
	}
	set[key] = struct{}{}
}

// GetRandomPhrase uniformly picks a cached key for label, never repeating
// the most-recently-returned key when an alternative exists. A pick counts
// as a hit (lastUsedAt touched, hit counter incremented).
func (c *Cache) GetRandomPhrase(label string) (buffer []byte, isBakedOgg bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.labelSets[label]
	if len(set) == 0 {
		return nil, false, false
	}

	candidates := make([]string, 0, len(set))
	for k := range set {
		if _, present := c.entries[k]; present {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return nil, false, false
	}

	last := c.lastReturned[label]
	if len(candidates) > 1 {
		filtered := candidates[:0:0]
		for _, k := range candidates {
			if k != last {
				filtered = append(filtered, k)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	pick := candidates[c.rng.Intn(len(candidates))]
	c.lastReturned[label] = pick

	e := c.entries[pick]
	e.LastUsedAt = time.Now()
	c.incMetric(metrics.CounterTTSCacheHits)
	return e.Buffer, e.IsBakedOgg, true
}
