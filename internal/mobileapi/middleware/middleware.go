// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware implements the mobile API's fixed request pipeline
// (spec §4.10): rate limit, then replay-nonce check, then bearer-token
// auth, then an audit-log append, in that order, ahead of every handler.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coheara/engine/internal/mobileapi/noncecache"
	"github.com/coheara/engine/internal/mobileapi/ratelimit"
	"github.com/coheara/engine/pkg/cherr"
	"github.com/coheara/engine/pkg/extensions"
)

const (
	authInfoKey    = "coheara_device_auth_info"
	nonceWindow    = 30 * time.Second
	nonceHeader    = "X-Request-Nonce"
	timestampHdr   = "X-Request-Timestamp"
	newTokenHeader = "X-New-Token"
)

// SetAuthInfo stores the authenticated device's identity in the Gin
// context. Called by Auth after a token validates.
func SetAuthInfo(c *gin.Context, info *extensions.DeviceAuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the device identity Auth stored, or nil if the
// request never passed through Auth (or Auth has not run yet).
func GetAuthInfo(c *gin.Context) *extensions.DeviceAuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, ok := v.(*extensions.DeviceAuthInfo)
	if !ok {
		return nil
	}
	return info
}

// Fail aborts the request with the wire error envelope cherr.ToBody
// produces for err, setting Cache-Control: no-store on every error
// response so a client never caches a failed auth attempt. It does not
// set Retry-After; RateLimit sets that header before calling Fail.
func Fail(c *gin.Context, err error) {
	status, body := cherr.ToBody(err)
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, body)
}

// rateLimitKey derives the limiter bucket key for a request: the first
// 16 characters of its bearer token, or "anonymous" if there is none.
// Truncating avoids keying on (and retaining) the full token.
func rateLimitKey(c *gin.Context) string {
	token := extractBearerToken(c)
	if token == "" {
		return "anonymous"
	}
	if len(token) > 16 {
		token = token[:16]
	}
	return token
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RateLimit enforces the 100/min and 1000/hour caps per caller.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := limiter.Allow(rateLimitKey(c))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			Fail(c, cherr.New(cherr.RateLimited, "too many requests"))
			return
		}
		c.Next()
	}
}

// Nonce rejects replayed or stale-clock requests: the caller must send
// X-Request-Nonce and X-Request-Timestamp headers, the timestamp must be
// within 30 seconds of server time, and the nonce must not have been
// seen before within the cache's retention window.
func Nonce(cache *noncecache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := c.GetHeader(nonceHeader)
		ts := c.GetHeader(timestampHdr)
		if nonce == "" || ts == "" {
			Fail(c, cherr.New(cherr.NonceInvalid, "missing nonce or timestamp"))
			return
		}
		unixSeconds, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			Fail(c, cherr.New(cherr.NonceInvalid, "malformed timestamp"))
			return
		}
		sent := time.Unix(unixSeconds, 0)
		if drift := time.Since(sent); drift > nonceWindow || drift < -nonceWindow {
			Fail(c, cherr.New(cherr.NonceInvalid, "timestamp outside the permitted window"))
			return
		}
		if cache.SeenOrRecord(nonce) {
			Fail(c, cherr.New(cherr.NonceInvalid, "nonce already used"))
			return
		}
		c.Next()
	}
}

// Auth validates the bearer token against provider and, on success,
// injects the resolved device identity into the context and echoes the
// rotated token back via X-New-Token (spec §4.9).
func Auth(provider extensions.DeviceAuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			Fail(c, cherr.New(cherr.AuthRequired, "missing bearer token"))
			return
		}
		info, newToken, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			Fail(c, err)
			return
		}
		SetAuthInfo(c, info)
		if newToken != "" {
			c.Header(newTokenHeader, newToken)
		}
		c.Next()
	}
}

// Audit appends one access-log entry per request, once Auth has resolved
// a device identity. Logging failures never fail the request; they are
// carried in the gin error list for the caller's own logging middleware.
func Audit(log extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		info := GetAuthInfo(c)
		if info == nil {
			return
		}
		event := extensions.AuditEvent{
			Timestamp: time.Now().UTC(),
			Source:    extensions.SourceMobileDevice,
			DeviceID:  info.DeviceID,
			ProfileID: info.ProfileID,
			Action:    "mobile_request",
			Subject:   c.Request.Method + " " + c.FullPath(),
			Metadata:  extensions.Metadata{"status": strconv.Itoa(c.Writer.Status())},
		}
		if err := log.Log(c.Request.Context(), event); err != nil {
			_ = c.Error(err)
		}
	}
}

// NoStore sets Cache-Control: no-store on every response so a mobile
// client or intermediate proxy never caches PHI-bearing payloads.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
