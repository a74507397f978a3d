// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cherr implements the engine's closed error taxonomy: the three
// families of §7 (user-facing validation, authentication/session, internal)
// collapsed into a single Error type with an HTTP status/code mapping for
// the mobile API.
package cherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates every error kind the engine ever returns across its
// public operations. Kind is a closed set; handlers switch exhaustively
// over it rather than string-matching messages.
type Kind string

const (
	// User-facing validation: expected outcomes of bad input, never logged at warn.
	BadRequest            Kind = "BAD_REQUEST"
	NotFound              Kind = "NOT_FOUND"
	PairingDenied         Kind = "PAIRING_DENIED"
	NonceInvalid          Kind = "NONCE_INVALID"
	WrongPassword         Kind = "WRONG_PASSWORD"
	InvalidRecoveryPhrase Kind = "INVALID_RECOVERY_PHRASE"
	ProfileExists         Kind = "PROFILE_EXISTS"
	UnsupportedFormat     Kind = "UNSUPPORTED_FORMAT"
	InvalidEnum           Kind = "INVALID_ENUM"

	// Authentication & session.
	AuthRequired  Kind = "AUTH_REQUIRED"
	TokenExpired  Kind = "TOKEN_EXPIRED"
	ProfileLocked Kind = "PROFILE_LOCKED"
	RateLimited   Kind = "RATE_LIMITED"

	// Internal: detail logged server-side, client sees a generic message only.
	Internal          Kind = "INTERNAL"
	LockPoisoned      Kind = "LOCK_POISONED"
	MigrationFailed   Kind = "MIGRATION_FAILED"
	Database          Kind = "DATABASE"
	DecryptionFailed  Kind = "DECRYPTION_FAILED"
	Crypto            Kind = "CRYPTO"
	ReferenceDataLoad Kind = "REFERENCE_DATA_LOAD"
)

// genericInternalMessage is the only text an internal-family error ever
// exposes to a client. Deliberately indistinguishable across causes: a
// decrypt failure must not be distinguishable from a disk read failure,
// or the response becomes an oracle against the encrypted store.
const genericInternalMessage = "An internal error occurred"

// Error is the engine's single error type. detail is logged server-side
// only; message is what a client is ever allowed to see.
type Error struct {
	Kind    Kind
	message string
	detail  error
}

func (e *Error) Error() string {
	if e.detail != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.message, e.detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.message)
}

func (e *Error) Unwrap() error { return e.detail }

// ClientMessage returns the text safe to return to an API caller. Internal
// kinds always collapse to the same generic sentence regardless of detail.
func (e *Error) ClientMessage() string {
	if isInternal(e.Kind) {
		return genericInternalMessage
	}
	return e.message
}

func isInternal(k Kind) bool {
	switch k {
	case Internal, LockPoisoned, MigrationFailed, Database, DecryptionFailed, Crypto, ReferenceDataLoad:
		return true
	default:
		return false
	}
}

// New builds an Error with a client-visible message and no wrapped detail.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, message: message}
}

// Wrap builds an Error carrying a server-side-only detail error. For
// internal kinds, message is never returned to the client; it exists only
// so server logs read naturally.
func Wrap(kind Kind, message string, detail error) *Error {
	return &Error{Kind: kind, message: message, detail: detail}
}

// As reports whether err (or something it wraps) is a *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, else Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the status code the mobile API returns for it.
func HTTPStatus(k Kind) int {
	switch k {
	case AuthRequired, TokenExpired:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case ProfileLocked:
		return http.StatusServiceUnavailable
	case NotFound:
		return http.StatusNotFound
	case BadRequest, NonceInvalid, InvalidEnum, UnsupportedFormat, InvalidRecoveryPhrase, WrongPassword, ProfileExists:
		return http.StatusBadRequest
	case PairingDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON envelope every mobile API error response uses:
// {"error": {"code": "...", "message": "..."}}.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToBody converts any error into the wire error envelope, coercing
// non-cherr errors to Internal.
func ToBody(err error) (int, Body) {
	e, ok := As(err)
	if !ok {
		e = Wrap(Internal, "unclassified error", err)
	}
	return HTTPStatus(e.Kind), Body{Error: BodyError{Code: string(e.Kind), Message: e.ClientMessage()}}
}
