// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"bytes"
	"encoding/hex"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	"github.com/coheara/engine/pkg/cherr"
)

// phashGrid is the side length of the downsampled grayscale grid; a
// 16x16 grid produces exactly 256 bits, one per cell.
const phashGrid = 16

// PerceptualHash computes a 256-bit DoubleGradient hash of image data,
// returned as 64 hex characters. Each grid cell's brightness is compared
// against both its right and below neighbors (wrapping at the grid
// edge); the bit is set when exactly one of those two comparisons is
// "brighter than". Combining both gradient directions into a single bit
// per cell is what makes this a *double* gradient hash, as opposed to a
// plain single-direction gradient hash — it stays stable under the
// recompression artifacts a scanned re-render introduces while still
// separating genuinely distinct pages.
func PerceptualHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", cherr.Wrap(cherr.BadRequest, "decode image for perceptual hash", err)
	}
	grid := downsampleGray(img, phashGrid)

	var hash [32]byte
	bitIndex := 0
	for y := 0; y < phashGrid; y++ {
		for x := 0; x < phashGrid; x++ {
			cell := grid[y][x]
			right := grid[y][(x+1)%phashGrid]
			below := grid[(y+1)%phashGrid][x]
			if (cell > right) != (cell > below) {
				hash[bitIndex/8] |= 1 << uint(7-bitIndex%8)
			}
			bitIndex++
		}
	}
	return hex.EncodeToString(hash[:]), nil
}

// downsampleGray nearest-neighbor samples img down to an n x n grayscale
// grid using the standard luma weights.
func downsampleGray(img image.Image, n int) [][]uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}

	grid := make([][]uint8, n)
	for gy := 0; gy < n; gy++ {
		grid[gy] = make([]uint8, n)
		py := bounds.Min.Y + gy*h/n
		for gx := 0; gx < n; gx++ {
			px := bounds.Min.X + gx*w/n
			r, g, b, _ := img.At(px, py).RGBA()
			grid[gy][gx] = uint8((299*r + 587*g + 114*b) / 1000 >> 8)
		}
	}
	return grid
}

// HammingDistance256 counts differing bits between two hex-encoded
// 256-bit perceptual hashes.
func HammingDistance256(a, b string) (int, error) {
	ab, err := hex.DecodeString(a)
	if err != nil {
		return 0, cherr.New(cherr.BadRequest, "malformed perceptual hash")
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return 0, cherr.New(cherr.BadRequest, "malformed perceptual hash")
	}
	if len(ab) != len(bb) {
		return 0, cherr.New(cherr.BadRequest, "perceptual hash length mismatch")
	}
	dist := 0
	for i := range ab {
		dist += bits.OnesCount8(ab[i] ^ bb[i])
	}
	return dist, nil
}
