package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ObjectStore persists blobs and returns a URL recipients can open.
// Uploading to an existing key overwrites it.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

var errInvalidKey = errors.New("invalid object key")

// PublicURL joins the public base URL with bucket and key.
func PublicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

func validateKey(bucket, key string) error {
	for _, part := range []string{bucket, key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return errInvalidKey
		}
	}
	return nil
}
