package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes objects below a directory; the HTTP server exposes that
// directory at the public base URL. Used when no S3 endpoint is configured.
type LocalStore struct {
	root          string
	publicBaseURL string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{root: root, publicBaseURL: publicBaseURL}, nil
}

// Root is the directory served as static media.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Upload(ctx context.Context, bucket, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateKey(bucket, key); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bucket dir: %w", err)
	}

	// write then rename so readers never see a partial image
	tmp, err := os.CreateTemp(dir, "."+key+".*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, key)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit object: %w", err)
	}
	return PublicURL(s.publicBaseURL, bucket, key), nil
}
