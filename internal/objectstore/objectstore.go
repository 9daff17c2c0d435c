// Package objectstore stores published artifacts under opaque keys and maps keys
// to public URLs.
package objectstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Get on missing keys.
var ErrNotFound = errors.New("object not found")

// Storage is the object-storage capability the publisher depends on.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public URL for key. It does not check the key exists.
	URL(key string) string
}

func publicURL(base, key string) string {
	base = strings.TrimRight(base, "/")

	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}

	return base + "/" + strings.Join(parts, "/")
}
