// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements the mobile API's sliding-window rate
// limit (spec §4.10): 100 requests per minute and 1000 per hour, keyed
// per caller.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	perMinuteLimit = 100
	perHourLimit   = 1000
)

type bucketPair struct {
	minute   *rate.Limiter
	hour     *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks a token-bucket pair per key, approximating the sliding
// window spec §4.10 describes: one limiter refilling over a minute at
// 100 requests, one refilling over an hour at 1000, both must allow.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketPair
	idleTTL time.Duration
}

// New constructs a Limiter. idleTTL controls how long an unused key's
// buckets are kept before Sweep reclaims them; zero disables sweeping.
func New(idleTTL time.Duration) *Limiter {
	return &Limiter{buckets: make(map[string]*bucketPair), idleTTL: idleTTL}
}

// Allow reports whether key may proceed right now, and if not, how long
// until the tighter of the two windows would allow it.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucketPair{
			minute: rate.NewLimiter(rate.Every(time.Minute/perMinuteLimit), perMinuteLimit),
			hour:   rate.NewLimiter(rate.Every(time.Hour/perHourLimit), perHourLimit),
		}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	now := time.Now()
	minuteRes := b.minute.ReserveN(now, 1)
	if !minuteRes.OK() {
		return false, time.Minute
	}
	hourRes := b.hour.ReserveN(now, 1)
	if !hourRes.OK() {
		minuteRes.CancelAt(now)
		return false, time.Hour
	}

	minuteDelay := minuteRes.DelayFrom(now)
	hourDelay := hourRes.DelayFrom(now)
	if minuteDelay > 0 || hourDelay > 0 {
		minuteRes.CancelAt(now)
		hourRes.CancelAt(now)
		if minuteDelay > hourDelay {
			return false, minuteDelay
		}
		return false, hourDelay
	}
	return true, 0
}

// Sweep evicts buckets idle longer than idleTTL, bounding memory for a
// long-running server with many distinct callers. A no-op when idleTTL
// is zero.
func (l *Limiter) Sweep() int {
	if l.idleTTL == 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	cutoff := time.Now().Add(-l.idleTTL)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}
