// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries is used when NewCache is given a non-positive size.
// It covers the text parts of roughly the last hundred exchanges.
const DefaultMaxEntries = 256

// =============================================================================
// KEYS AND ENTRIES
// =============================================================================

// Fingerprint is a cheap summary of part text used to detect content changes.
type Fingerprint uint64

// FingerprintOf hashes text with xxhash64.
func FingerprintOf(text string) Fingerprint {
	return Fingerprint(xxhash.Sum64String(text))
}

// Key identifies one part of one message. The cache holds at most one entry per Key.
type Key struct {
	MessageID string
	Part      int
}

type entry struct {
	fingerprint Fingerprint
	size        int
	rendered    string
	lastAccess  time.Time
}

// Stats holds cache statistics.
type Stats struct {
	Hits     int
	Misses   int
	Replaced int
	Evicted  int
	Entries  int
	HitRate  float64
}

// =============================================================================
// CACHE
// =============================================================================

// Cache memoizes rendered part text.
//
// An entry is reused while (message id, part index, fingerprint) is unchanged.
// A new fingerprint for the same part replaces the old entry. The least
// recently used entries are dropped beyond the size bound.
type Cache struct {
	mu   sync.Mutex
	conv Converter
	lru  *lru.Cache[Key, *entry]

	hits     int
	misses   int
	replaced int
	evicted  int
}

// NewCache creates a cache over conv holding at most maxEntries parts.
func NewCache(conv Converter, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if conv == nil {
		conv = Plain
	}
	// lru.New only fails for a non-positive size.
	l, _ := lru.New[Key, *entry](maxEntries)
	return &Cache{conv: conv, lru: l}
}

// Render returns the rendered form of text for the given part.
// Conversion failures fall back to the raw text, which is cached like any result.
func (c *Cache) Render(messageID string, part int, text string) string {
	key := Key{MessageID: messageID, Part: part}
	fp := FingerprintOf(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lru.Get(key); ok {
		if e.fingerprint == fp && e.size == len(text) {
			e.lastAccess = time.Now()
			c.hits++
			return e.rendered
		}
		c.replaced++
	}
	c.misses++

	rendered, err := c.conv.Convert(text)
	if err != nil {
		rendered = text
	}

	e := &entry{
		fingerprint: fp,
		size:        len(text),
		rendered:    rendered,
		lastAccess:  time.Now(),
	}
	if evicted := c.lru.Add(key, e); evicted {
		c.evicted++
	}
	return rendered
}

// Peek reports the fingerprint cached for a part without touching recency.
func (c *Cache) Peek(messageID string, part int) (Fingerprint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(Key{MessageID: messageID, Part: part})
	if !ok {
		return 0, false
	}
	return e.fingerprint, true
}

// Len returns the number of cached parts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every entry and resets statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.hits, c.misses, c.replaced, c.evicted = 0, 0, 0, 0
}

// SetConverter swaps the converter and drops entries rendered by the old one.
func (c *Cache) SetConverter(conv Converter) {
	if conv == nil {
		conv = Plain
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conv = conv
	c.lru.Purge()
}

// Resize changes the size bound, evicting the oldest entries if it shrinks.
func (c *Cache) Resize(maxEntries int) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evicted += c.lru.Resize(maxEntries)
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Replaced: c.replaced,
		Evicted:  c.evicted,
		Entries:  c.lru.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
