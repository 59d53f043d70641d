package objectstore

import (
	"context"
	"fmt"
	"io"
)

// Store keeps media objects addressed by key.
type Store interface {
	// Put writes the object. ContentType is derived from the key when empty.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// URL is the public address of key.
	URL(key string) string
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Driver {
	case DriverS3:
		return NewS3Store(ctx, cfg)
	case DriverLocal:
		return NewLocalStore(cfg.LocalRoot, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}
