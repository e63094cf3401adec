package core

import (
	"context"
	"time"
)

var ErrSessionMissing = NewNotFoundError("session expired or not found")

// SessionStore keeps short-lived state between requests.
type SessionStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrSessionMissing when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the keys, values and hashes alike.
	Delete(ctx context.Context, keys ...string) error

	// SetField stores one field of the hash at key and resets the TTL of the whole hash.
	// Writers of different fields do not overwrite each other.
	SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error
	// Fields returns every field of the hash at key, none when it does not exist or has expired.
	Fields(ctx context.Context, key string) (map[string][]byte, error)
}
