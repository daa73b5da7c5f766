/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// LRUCache is a goroutine safe bounded cache.
// The least recently used entry is evicted once MaxEntries is exceeded.
// MaxEntries <= 0 means unbounded.
type LRUCache struct {
	mu    sync.Mutex
	items *lru.Cache
}

// NewLRUCache creates a cache holding at most maxEntries entries.
// onEvicted, if non-nil, is called with the mutex held when an entry is removed.
func NewLRUCache(maxEntries int, onEvicted func(key string, value interface{})) *LRUCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	c := &LRUCache{items: lru.New(maxEntries)}
	if onEvicted != nil {
		c.items.OnEvicted = func(key lru.Key, value interface{}) {
			onEvicted(key.(string), value)
		}
	}
	return c
}

// Set stores value under key and marks it most recently used.
func (c *LRUCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, value)
}

// Get returns the cached value and marks it most recently used.
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Get(key)
}

// Has reports whether key is cached.
func (c *LRUCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// GetOrCreate returns the cached value or stores the one built by create.
// create runs with the cache locked and its error is returned without caching.
func (c *LRUCache) GetOrCreate(key string, create func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	c.items.Add(key, v)
	return v, nil
}

func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Clear removes every entry, calling onEvicted for each.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Clear()
}
