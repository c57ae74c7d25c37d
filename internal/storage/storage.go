// Package storage provides the blob store used to pass data between pipeline stages.
package storage

import (
	"context"
	"errors"
	"path"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// Location addresses a single blob by bucket, directory and filename.
// It is passed between stages in place of the blob contents.
type Location struct {
	Bucket    string `json:"bucket"`
	Directory string `json:"directory"`
	Filename  string `json:"filename"`
}

// Key returns the object key for the location.
func (l Location) Key() string {
	if l.Directory == "" {
		return l.Filename
	}
	return path.Join(l.Directory, l.Filename)
}

// Page is one page of a key listing.
type Page struct {
	Keys      []string
	NextToken string
}

// BlobStore abstracts the key/value object store.
type BlobStore interface {
	// Put writes body at loc, replacing any existing object.
	Put(ctx context.Context, loc Location, body []byte) error

	// Get reads the object at loc. Returns ErrObjectNotFound if it does not exist.
	Get(ctx context.Context, loc Location) ([]byte, error)

	// List returns up to maxKeys keys under prefix in lexicographic order,
	// starting after the position encoded by token. An empty NextToken
	// means the listing is exhausted.
	List(ctx context.Context, bucket, prefix string, maxKeys int32, token string) (Page, error)
}

// Pager iterates over a listing one page at a time.
type Pager struct {
	store    BlobStore
	bucket   string
	prefix   string
	pageSize int32
	token    string
	done     bool
}

// NewPager creates a pager that starts at token (empty for the first page).
func NewPager(store BlobStore, bucket, prefix string, pageSize int32, token string) *Pager {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Pager{
		store:    store,
		bucket:   bucket,
		prefix:   prefix,
		pageSize: pageSize,
		token:    token,
	}
}

// HasMorePages reports whether NextPage can return another page.
func (p *Pager) HasMorePages() bool {
	return !p.done
}

// NextPage fetches the next page and advances the pager.
func (p *Pager) NextPage(ctx context.Context) (Page, error) {
	if p.done {
		return Page{}, nil
	}
	page, err := p.store.List(ctx, p.bucket, p.prefix, p.pageSize, p.token)
	if err != nil {
		return Page{}, err
	}
	p.token = page.NextToken
	if page.NextToken == "" {
		p.done = true
	}
	return page, nil
}

// Token returns the continuation token for resuming after the last page read.
func (p *Pager) Token() string {
	return p.token
}

// ListAll drains a pager and returns every key under prefix.
func ListAll(ctx context.Context, store BlobStore, bucket, prefix string) ([]string, error) {
	var keys []string
	pager := NewPager(store, bucket, prefix, 0, "")
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page.Keys...)
	}
	return keys, nil
}
