package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalStore implements BlobStore on the local filesystem.
// Buckets map to subdirectories of the base path.
type LocalStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewLocalStore creates a store rooted at basePath, creating it if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Put writes body to the location.
func (l *LocalStore) Put(ctx context.Context, loc Location, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dest := l.fullPath(loc.Bucket, loc.Key())
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrUploadFailed, err)
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return nil
}

// Get reads the object at the location.
func (l *LocalStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	body, err := os.ReadFile(l.fullPath(loc.Bucket, loc.Key()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", loc.Bucket, loc.Key(), ErrObjectNotFound)
		}
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return body, nil
}

// List returns keys under prefix in lexicographic order. The continuation
// token is the last key of the previous page.
func (l *LocalStore) List(ctx context.Context, bucket, prefix string, maxKeys int32, token string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	root := filepath.Join(l.basePath, bucket)
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // bucket doesn't exist yet
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && key > token {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return Page{}, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}

	sort.Strings(keys)

	var page Page
	if maxKeys > 0 && len(keys) > int(maxKeys) {
		keys = keys[:maxKeys]
		page.NextToken = keys[len(keys)-1]
	}
	page.Keys = keys
	return page, nil
}

func (l *LocalStore) fullPath(bucket, key string) string {
	return filepath.Join(l.basePath, bucket, filepath.FromSlash(key))
}
