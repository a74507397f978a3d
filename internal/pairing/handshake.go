// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"crypto/ecdh"
	"crypto/rand"

	"github.com/coheara/engine/pkg/cherr"
)

// ephemeralKeypair is the desktop's per-pairing X25519 keypair. No
// library in the example pack offers ECDH/X25519; crypto/ecdh is the
// standard-library primitive introduced for exactly this purpose and is
// the idiomatic choice over vendoring a third-party curve implementation.
type ephemeralKeypair struct {
	private *ecdh.PrivateKey
	public  []byte
}

func newEphemeralKeypair() (*ephemeralKeypair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, cherr.Wrap(cherr.Crypto, "generate pairing keypair", err)
	}
	return &ephemeralKeypair{private: priv, public: priv.PublicKey().Bytes()}, nil
}

// sharedSecret derives the ECDH shared secret from the desktop's private
// key and the phone's public key bytes.
func (k *ephemeralKeypair) sharedSecret(phonePublicKey []byte) ([]byte, error) {
	peer, err := ecdh.X25519().NewPublicKey(phonePublicKey)
	if err != nil {
		return nil, cherr.Wrap(cherr.BadRequest, "malformed phone public key", err)
	}
	secret, err := k.private.ECDH(peer)
	if err != nil {
		return nil, cherr.Wrap(cherr.Crypto, "derive shared secret", err)
	}
	return secret, nil
}

// validPublicKeyShape reports whether b looks like an X25519 public key.
func validPublicKeyShape(b []byte) bool {
	return len(b) == 32
}
