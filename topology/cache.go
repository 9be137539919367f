// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"sort"
	"strings"
	"sync"

	"github.com/ikmak/rslink/address"
)

// Cache shares server sets between links pointed at the same replica set.
// Sets are reference counted and evicted when the last holder releases them.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	keys    map[*ServerSet]string
}

type cacheEntry struct {
	set  *ServerSet
	refs int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		keys:    make(map[*ServerSet]string),
	}
}

func cacheKey(setName string, seeds []address.Address) string {
	addrs := dedupe(seeds)
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = string(a)
	}
	sort.Strings(strs)
	return setName + "/" + strings.Join(strs, ",")
}

// Get returns the shared set for setName and seeds, creating it on first use,
// and takes a reference on it. Seed order and duplicates do not affect which
// set is returned.
func (c *Cache) Get(setName string, seeds []address.Address, opts ...ServerSetOption) *ServerSet {
	key := cacheKey(setName, seeds)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.refs++
		return e.set
	}

	set := NewServerSet(seeds, append(opts, WithSetName(setName))...)
	c.entries[key] = &cacheEntry{set: set, refs: 1}
	c.keys[set] = key
	return set
}

// Release drops one reference on set and reports whether it was evicted.
// Releasing a set the cache does not hold is a no-op.
func (c *Cache) Release(set *ServerSet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.keys[set]
	if !ok {
		return false
	}
	e := c.entries[key]
	e.refs--
	if e.refs > 0 {
		return false
	}
	delete(c.entries, key)
	delete(c.keys, set)
	return true
}

// Len returns the number of cached sets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
