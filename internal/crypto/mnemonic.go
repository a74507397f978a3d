// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"sort"
	"strings"

	"github.com/coheara/engine/pkg/cherr"
)

// EntropyBytes is the entropy width of a recovery phrase: 16 bytes (128
// bits) yields exactly 12 words under the BIP39 scheme below.
const EntropyBytes = 16

// PhraseWords is the number of words in a generated recovery phrase.
const PhraseWords = 12

const wordlistSize = 2048

// wordlist is a fixed, deterministically generated 2048-word vocabulary
// used in place of the literal BIP39 English list; see DESIGN.md for why
// it's synthesized rather than embedded verbatim. The mnemonic encoding —
// entropy plus a checksum nibble packed into 11-bit word indices — is the
// real BIP39 algorithm; only the word strings themselves differ.
var wordlist = buildWordlist()

func buildWordlist() []string {
	const consonants = "bcdfghjklmnpqrstvwxyz"
	const vowels = "aeiou"
	words := make([]string, 0, wordlistSize)
	for ci := 0; ci < len(consonants) && len(words) < wordlistSize; ci++ {
		for vi := 0; vi < len(vowels) && len(words) < wordlistSize; vi++ {
			for cj := 0; cj < len(consonants) && len(words) < wordlistSize; cj++ {
				for vj := 0; vj < len(vowels) && len(words) < wordlistSize; vj++ {
					words = append(words, string([]byte{consonants[ci], vowels[vi], consonants[cj], vowels[vj]}))
				}
			}
		}
	}
	sort.Strings(words)
	return words
}

var wordIndex = buildWordIndex()

func buildWordIndex() map[string]int {
	idx := make(map[string]int, len(wordlist))
	for i, w := range wordlist {
		idx[w] = i
	}
	return idx
}

// GenerateRecoveryPhrase samples 16 bytes of entropy and encodes it as a
// 12-word mnemonic: SHA-256(entropy)'s top 4 bits become a checksum
// nibble, the 132 resulting bits are split into twelve 11-bit indices,
// and each index selects a word.
func GenerateRecoveryPhrase() (string, error) {
	entropy := make([]byte, EntropyBytes)
	if _, err := rand.Read(entropy); err != nil {
		return "", cherr.Wrap(cherr.Crypto, "sample recovery entropy", err)
	}
	return encodeMnemonic(entropy), nil
}

func encodeMnemonic(entropy []byte) string {
	hash := sha256.Sum256(entropy)
	checksum := int64(hash[0] >> 4) // top 4 bits

	combined := new(big.Int).SetBytes(entropy)
	combined.Lsh(combined, 4)
	combined.Or(combined, big.NewInt(checksum))

	mask := big.NewInt(0x7FF) // 11 bits
	indices := make([]int, PhraseWords)
	tmp := new(big.Int).Set(combined)
	for i := PhraseWords - 1; i >= 0; i-- {
		part := new(big.Int).And(tmp, mask)
		indices[i] = int(part.Int64())
		tmp.Rsh(tmp, 11)
	}

	words := make([]string, PhraseWords)
	for i, idx := range indices {
		words[i] = wordlist[idx]
	}
	return strings.Join(words, " ")
}

// ValidateMnemonic checks that phrase is structurally a valid 12-word
// mnemonic over the wordlist with a correct checksum, and returns its
// underlying entropy. Fails with InvalidRecoveryPhrase on word count,
// unknown words, or a checksum mismatch — never on anything else.
func ValidateMnemonic(phrase string) ([]byte, error) {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
	if len(words) != PhraseWords {
		return nil, cherr.New(cherr.InvalidRecoveryPhrase, "recovery phrase must have 12 words")
	}

	combined := new(big.Int)
	for _, w := range words {
		idx, ok := wordIndex[w]
		if !ok {
			return nil, cherr.New(cherr.InvalidRecoveryPhrase, "recovery phrase contains an unrecognized word")
		}
		combined.Lsh(combined, 11)
		combined.Or(combined, big.NewInt(int64(idx)))
	}

	checksum := byte(new(big.Int).And(combined, big.NewInt(0xF)).Int64())
	entropyInt := new(big.Int).Rsh(combined, 4)
	entropy := entropyInt.FillBytes(make([]byte, EntropyBytes))

	hash := sha256.Sum256(entropy)
	if checksum != hash[0]>>4 {
		return nil, cherr.New(cherr.InvalidRecoveryPhrase, "recovery phrase checksum does not match")
	}
	return entropy, nil
}
