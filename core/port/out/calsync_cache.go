package out

import (
	"context"
	"time"
)

// ResponseCache defines the outbound port for the event-list response cache.
type ResponseCache interface {
	// GetJSON loads a cached value into dest. Returns false on miss.
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)

	// SetJSON stores a value as JSON with a TTL.
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// DeletePattern invalidates all keys matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string) error
}

// StateStore defines the outbound port for short-lived OAuth CSRF state.
type StateStore interface {
	// SaveState stores a state value with a TTL.
	SaveState(ctx context.Context, state string, ttl time.Duration) error

	// ConsumeState validates and deletes a state value. Returns false when
	// the state is unknown or expired.
	ConsumeState(ctx context.Context, state string) (bool, error)
}
