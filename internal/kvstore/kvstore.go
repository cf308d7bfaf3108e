// Package kvstore implements the KV+List store port: a durable map of
// state blobs and FIFO task lists backed by Redis-compatible servers.
package kvstore

import "context"

// Store is the minimal KV+List port every control-loop component talks
// to. Values are opaque UTF-8 JSON blobs; the store never interprets
// them.
type Store interface {
	// Get returns the value stored under key, or (nil, nil) if unset.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Del removes a key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// LPush pushes value onto the head of list.
	LPush(ctx context.Context, list string, value []byte) error
	// RPop pops a value from the tail of list, or (nil, nil) if empty.
	RPop(ctx context.Context, list string) ([]byte, error)
	// LLen returns the number of items in list.
	LLen(ctx context.Context, list string) (int64, error)
	// LRange returns a slice of list between start and stop, inclusive,
	// using Redis's negative-index convention (-1 = last element).
	LRange(ctx context.Context, list string, start, stop int64) ([][]byte, error)

	// Close releases any underlying connection resources.
	Close() error
}
