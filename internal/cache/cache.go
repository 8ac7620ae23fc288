// Copyright 2024 AgentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache provides the path-resolution cache described in spec.md
// §4.4: a bounded, approximately-LRU map from normalized absolute path to
// the (ino, kind, generation) binding the Path Resolver last observed.
//
// Design principles (carried from the upstream VFS cache this package
// replaces):
//  1. Fine-grained invalidation — invalidate only affected paths, never the
//     whole cache, except for the explicit ClearCache escape hatch.
//  2. Bindings only, never attributes — a chmod/chown/utimes never touches
//     the cache; only operations that change what a path resolves *to* do.
package cache

import (
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Disabled controls whether the resolution cache is disabled process-wide.
// Set via AGENTFS_CACHE=0. When true, Cache.Lookup always misses and
// Cache.Insert is a no-op; CacheStats reports the "not present" sentinel.
var Disabled = os.Getenv("AGENTFS_CACHE") == "0"

// Invalidator is implemented by all caches that support full invalidation.
type Invalidator interface {
	// Invalidate clears all entries from the cache.
	Invalidate()
}

// Kind identifies what a cached binding resolves to, mirroring the inode's
// mode-type bits without requiring a storage import from this package.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Binding is the value stored per path: the resolved inode, its kind, and
// the generation counter stamped at insertion (exposed for tests; the
// generation is otherwise an internal staleness guard).
type Binding struct {
	Ino        uint64
	Kind       Kind
	Generation uint64
}

// Stats mirrors spec.md §4.4's CacheStats shape.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Entries  int
	Disabled bool
}

// HitRate returns hits / (hits+misses), or 0 when there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the bounded path-resolution cache. It is safe for concurrent use;
// every operation holds the internal mutex only long enough to touch the
// underlying LRU map, matching spec.md §5's invalidation-locking contract.
type Cache struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, Binding]
	generation uint64
	hits       uint64
	misses     uint64
	disabled   bool
}

// New builds a Cache holding at most maxEntries bindings. maxEntries <= 0
// disables the cache entirely (same effect as the AGENTFS_CACHE=0 env var).
func New(maxEntries int) *Cache {
	if Disabled || maxEntries <= 0 {
		return &Cache{disabled: true}
	}
	l, err := lru.New[string, Binding](maxEntries)
	if err != nil {
		// Only returns an error for size <= 0, already guarded above.
		return &Cache{disabled: true}
	}
	return &Cache{lru: l}
}

// Enabled reports whether the cache is actively storing bindings.
func (c *Cache) Enabled() bool {
	return !c.disabled
}

// Lookup returns the cached binding for path, if any.
func (c *Cache) Lookup(path string) (Binding, bool) {
	if c.disabled {
		return Binding{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.lru.Get(path)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return b, ok
}

// Insert records that path resolves to (ino, kind), stamping the current
// generation.
func (c *Cache) Insert(path string, ino uint64, kind Kind) {
	if c.disabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Add(path, Binding{Ino: ino, Kind: kind, Generation: c.generation})
}

// InvalidateExact removes a single path's binding, per the `unlink`/
// `remove`/single-file-`rename` rows of spec.md §4.4's invalidation table.
func (c *Cache) InvalidateExact(path string) {
	if c.disabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(path)
}

// InvalidateSubtree removes path's own binding plus every cached key with
// prefix path+"/", per the `rmdir`/directory-`rename` rows of spec.md
// §4.4's invalidation table.
func (c *Cache) InvalidateSubtree(path string) {
	if c.disabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := path + "/"
	c.lru.Remove(path)
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Invalidate clears every entry. Implements Invalidator for ClearCache().
func (c *Cache) Invalidate() {
	if c.disabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Keys returns every path currently bound in the cache. Intended for tests
// that verify invalidation reached every affected key, not for production
// call sites.
func (c *Cache) Keys() []string {
	if c.disabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Stats reports the cache's current Stats snapshot.
func (c *Cache) Stats() Stats {
	if c.disabled {
		return Stats{Disabled: true}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: c.lru.Len(),
	}
}
