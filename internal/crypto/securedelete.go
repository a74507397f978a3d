// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crypto

import (
	"crypto/rand"
	"os"

	"github.com/coheara/engine/pkg/logging"
)

// overwriteChunkSize bounds a single overwrite pass so shredding a large
// attachment doesn't allocate its full size in one random-fill call.
const overwriteChunkSize = 64 * 1024

// SecureDeleteFile overwrites a file's content with random bytes in
// bounded chunks, flushes to stable storage, then unlinks it. A missing
// file is a no-op. If the overwrite pass itself fails — read-only
// filesystem, permissions, I/O error — the failure is logged and the
// function falls back to a plain unlink; it never returns an error that
// would abort a caller's shred loop partway through.
func SecureDeleteFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if overwriteErr := overwriteFile(path, info.Size()); overwriteErr != nil {
		logging.Default().Warn("secure delete: overwrite failed, falling back to unlink",
			"path", path, "error", overwriteErr)
	}
	return os.Remove(path)
}

func overwriteFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	chunk := make([]byte, overwriteChunkSize)
	var written int64
	for written < size {
		n := overwriteChunkSize
		if remaining := size - written; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := rand.Read(chunk[:n]); err != nil {
			return err
		}
		if _, err := f.WriteAt(chunk[:n], written); err != nil {
			return err
		}
		written += int64(n)
	}
	return f.Sync()
}
