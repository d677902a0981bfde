package store

import "context"

// Store is the process-external status map. Values are JSON snapshots.
// Writes are last-writer-wins.
type Store interface {
	// Get decodes the value at key into dst. It reports false when the key
	// does not exist.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// SetMany writes all entries in one atomic step.
	SetMany(ctx context.Context, entries map[string]any) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
