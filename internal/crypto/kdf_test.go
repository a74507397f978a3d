// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_SamePasswordAndSaltYieldIdenticalBytes(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	k1 := DeriveKey([]byte("hunter222-correct-horse"), salt)
	defer k1.Destroy()
	k2 := DeriveKey([]byte("hunter222-correct-horse"), salt)
	defer k2.Destroy()

	assert.Equal(t, k1.Bytes(), k2.Bytes())
}

func TestDeriveKey_DifferentSaltsYieldDifferentKeys(t *testing.T) {
	saltA, err := NewSalt()
	require.NoError(t, err)
	saltB, err := NewSalt()
	require.NoError(t, err)

	kA := DeriveKey([]byte("same-password"), saltA)
	defer kA.Destroy()
	kB := DeriveKey([]byte("same-password"), saltB)
	defer kB.Destroy()

	assert.NotEqual(t, kA.Bytes(), kB.Bytes())
}

func TestDeriveKey_ProducesKeySizeBytes(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	k := DeriveKey([]byte("p"), salt)
	defer k.Destroy()
	assert.Len(t, k.Bytes(), KeySize)
}

func TestNewSalt_ProducesDistinctValues(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)
	assert.Len(t, a, SaltSize)
	assert.NotEqual(t, a, b)
}
