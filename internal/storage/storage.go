// Package storage holds transient uploads while they are being analyzed.
package storage

import (
	"context"
	"net/url"
	"path"
)

// ObjectStore is the binary blob store used for staged images.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ObjectKey scopes a staged object to its owner and a per-request identifier.
func ObjectKey(prefix, ownerID, id string) string {
	return path.Join(prefix, url.PathEscape(ownerID), id+".jpg")
}
