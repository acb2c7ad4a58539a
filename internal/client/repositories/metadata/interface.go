// Package metadata is the key/value store behind the client's persisted
// state. Values are opaque bytes; Get returns (nil, nil) for a missing key.
package metadata

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
