// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package explaincache caches patient-facing explanations generated by
// the structuring model, keyed by the content hash of the text that
// produced them, so unchanged text never re-invokes the model. This
// supplements spec §4.5 (the original engine's cached_explanation
// repository had no equivalent named in spec.md's distillation).
package explaincache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// entry is one cached explanation plus its position in the LRU list.
type entry struct {
	key       string
	value     string
	expiresAt time.Time
	elem      *list.Element
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxEntries overrides the default eviction capacity.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// Cache is a bounded, TTL-expiring, content-hash-keyed cache of
// generated explanation text. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*entry
	order      *list.List // front = most recently used
}

// New constructs a Cache with a 24-hour default TTL and a 500-entry
// default capacity; both are overridable via Option.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:        24 * time.Hour,
		maxEntries: 500,
		entries:    make(map[string]*entry),
		order:      list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key hashes the text that produced (or would produce) an explanation.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached explanation for key, if present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		return "", false
	}
	c.order.MoveToFront(e.elem)
	return e.value, true
}

// Put stores an explanation, evicting the least recently used entry if
// the cache is at capacity.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	e := &entry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

// Len reports the current entry count, including expired entries that
// have not been reaped yet (expired entries are reaped lazily on Get).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
