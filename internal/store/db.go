// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store is the encrypted per-profile relational store (spec
// §4.3) and the unencrypted cross-profile app registry (spec §4.4).
//
// mattn/go-sqlite3 has no native at-rest encryption (no SQLCipher build
// tag is available in this module's dependency set — see DESIGN.md), so
// the per-profile database is kept encrypted as a single AEAD-sealed
// envelope on disk and decrypted to a private working copy only while a
// profile is unlocked. Open decrypts the envelope (or creates a fresh
// database if none exists yet); Close reseals it and shreds the working
// copy.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	ccrypto "github.com/coheara/engine/internal/crypto"
	"github.com/coheara/engine/pkg/cherr"
)

//go:embed migrations/*.sql
var profileMigrationsFS embed.FS

//go:embed appmigrations/*.sql
var appMigrationsFS embed.FS

// DB wraps the per-profile encrypted relational store.
type DB struct {
	*sqlx.DB
	key         *ccrypto.Key
	workingPath string
}

// Open decrypts envelopePath (if it exists) into a working sqlite file
// alongside it, opens it with WAL journaling and foreign keys on, and
// runs the migration chain. Migration failure aborts the open with
// MigrationFailed{version, reason}.
func Open(envelopePath string, key *ccrypto.Key) (*DB, error) {
	workingPath := envelopePath + ".open"

	if data, err := os.ReadFile(envelopePath); err == nil {
		plaintext, decErr := ccrypto.Decrypt(key, data)
		if decErr != nil {
			return nil, decErr
		}
		if err := os.WriteFile(workingPath, plaintext, 0o600); err != nil {
			return nil, cherr.Wrap(cherr.Internal, "write working database copy", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, cherr.Wrap(cherr.Internal, "read database envelope", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", workingPath)
	sqlxDB, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "open database", err)
	}
	if err := sqlxDB.Ping(); err != nil {
		return nil, cherr.Wrap(cherr.Database, "ping database", err)
	}

	if err := migrate(sqlxDB.DB, profileMigrationsFS, "migrations"); err != nil {
		sqlxDB.Close()
		return nil, err
	}

	return &DB{DB: sqlxDB, key: key, workingPath: workingPath}, nil
}

// OpenApp opens the unencrypted cross-profile registry database in
// place (no envelope, since it carries no PHI).
func OpenApp(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "open app registry", err)
	}
	if err := db.Ping(); err != nil {
		return nil, cherr.Wrap(cherr.Database, "ping app registry", err)
	}
	if err := migrate(db.DB, appMigrationsFS, "appmigrations"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB, fs embed.FS, dir string) error {
	goose.SetBaseFS(fs)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return cherr.Wrap(cherr.MigrationFailed, "set migration dialect", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return cherr.Wrap(cherr.MigrationFailed, "run migrations", err)
	}
	return nil
}

// Close flushes the working copy, re-encrypts it over envelopePath, and
// shreds the plaintext working copy.
func (d *DB) Close(envelopePath string) error {
	if err := d.DB.Close(); err != nil {
		return cherr.Wrap(cherr.Database, "close database", err)
	}
	plaintext, err := os.ReadFile(d.workingPath)
	if err != nil {
		return cherr.Wrap(cherr.Internal, "read working database copy", err)
	}
	blob, err := ccrypto.Encrypt(d.key, plaintext)
	if err != nil {
		return err
	}
	if err := os.WriteFile(envelopePath, blob, 0o600); err != nil {
		return cherr.Wrap(cherr.Internal, "write database envelope", err)
	}
	return ccrypto.SecureDeleteFile(d.workingPath)
}
