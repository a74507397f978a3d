// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package explaincache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutThenGetReturnsValue(t *testing.T) {
	c := New()
	key := Key("TSH 2.5 uIU/mL, reference range 0.5-5.0")
	c.Put(key, "Your thyroid-stimulating hormone is within the normal range.")

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Your thyroid-stimulating hormone is within the normal range.", got)
}

func TestCache_KeyIsStableForIdenticalText(t *testing.T) {
	assert.Equal(t, Key("same text"), Key("same text"))
}

func TestCache_KeyDiffersForDifferentText(t *testing.T) {
	assert.NotEqual(t, Key("text a"), Key("text b"))
}

func TestCache_MissReturnsFalse(t *testing.T) {
	c := New()
	_, ok := c.Get(Key("never stored"))
	assert.False(t, ok)
}

func TestCache_EntryExpiresAfterTTL(t *testing.T) {
	c := New(WithTTL(time.Millisecond))
	key := Key("fleeting")
	c.Put(key, "explanation")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedOverCapacity(t *testing.T) {
	c := New(WithMaxEntries(2))
	c.Put(Key("a"), "explanation a")
	c.Put(Key("b"), "explanation b")
	c.Get(Key("a")) // touch a so b becomes the least recently used
	c.Put(Key("c"), "explanation c")

	_, aOK := c.Get(Key("a"))
	_, bOK := c.Get(Key("b"))
	_, cOK := c.Get(Key("c"))

	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)
}

func TestCache_LenReflectsStoredEntries(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.Len())
	c.Put(Key("x"), "y")
	assert.Equal(t, 1, c.Len())
}
