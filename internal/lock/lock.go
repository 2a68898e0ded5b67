// Package lock implements the distributed mutex the Orchestrator serializes
// GPU access through (spec §4.4 / §9: "key-value with TTL + atomic SETNX").
package lock

import (
	"context"
	"time"
)

// BackoffSchedule is the sequence of delays used when an initial acquire
// attempt finds the key already held (spec §4.4, grounded on the
// original's `await asyncio.sleep(2 ** i)` for i in range(5)).
var BackoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Store is the capability the Orchestrator needs from the external lock
// store: acquire a key with a value and TTL if unheld, and release it only
// if the caller still holds it.
type Store interface {
	// Acquire sets key to value with the given ttl only if key is
	// currently unset. Reports whether the caller now holds the lock.
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// ReleaseIfValueEquals deletes key only if its current value equals
	// value, so a caller never releases a lock it no longer holds.
	ReleaseIfValueEquals(ctx context.Context, key, value string) (bool, error)
	// Delete unconditionally removes key regardless of its current value,
	// for operator recovery (spec §6.1 POST /gpu/lock/release).
	Delete(ctx context.Context, key string) (bool, error)
	// Holder returns the current value stored at key, or "" if unset.
	Holder(ctx context.Context, key string) (string, error)
	// TTLRemaining returns the remaining time-to-live for key, or <0 if
	// the key does not exist.
	TTLRemaining(ctx context.Context, key string) (time.Duration, error)
}

// AcquireWithBackoff attempts Acquire once, then retries on
// BackoffSchedule if the key was already held, matching the exponential
// backoff in spec §4.4. Returns false (no error) if every attempt fails.
func AcquireWithBackoff(ctx context.Context, s Store, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.Acquire(ctx, key, value, ttl)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	for _, delay := range BackoffSchedule {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
		ok, err := s.Acquire(ctx, key, value, ttl)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
