// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package noncecache implements the bounded, insertion-ordered recent-
// nonce set the mobile API's replay check uses (spec §4.10).
package noncecache

import (
	"container/list"
	"sync"
)

// Cache is a fixed-capacity set of recently seen nonces. Insertion order
// is preserved so the oldest entry is evicted once capacity is reached,
// bounding memory regardless of request volume.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// New constructs a Cache holding at most capacity nonces.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// SeenOrRecord reports whether nonce was already recorded; if not, it
// records it and returns false. The check-and-insert is one atomic
// operation under the cache's single lock, matching spec §4.10's
// "single-writer, lock not held across suspension" requirement.
func (c *Cache) SeenOrRecord(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[nonce]; exists {
		return true
	}

	elem := c.order.PushBack(nonce)
	c.index[nonce] = elem
	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(string))
	}
	return false
}

// Len reports how many nonces are currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
