package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored archive object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads a payload to object storage. The implementation picks
// the transfer strategy; callers only supply the key, body, and content type.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves archived history from object storage.
type BlobReader interface {
	// Get returns the object body. The caller closes it. Missing objects
	// yield ErrNotFound.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// List returns metadata for every object under the prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Exists reports whether an object is present without fetching it.
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves aged engine history from the database to cold storage.
type Archiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
	ArchiveExecutions(ctx context.Context, before time.Time) (int64, error)
}
