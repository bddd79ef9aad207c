// Package object contains the object storage interface every backend implements.
// Implementations include S3-compatible stores, SQLite/libSQL, the local filesystem,
// Badger and bbolt.
package object

import (
	"context"
	"errors"
	"io"
	"maps"
	"time"
)

// Object holds metadata about a stored item.
type Object struct {
	Container    string
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	CustomMeta   map[string]string
}

// ErrNotFound is returned when a container or object does not exist.
var ErrNotFound = errors.New("object not found")

// Lifecycle defines init/teardown behavior.
type Lifecycle interface {
	Init(ctx context.Context, param any) error
	Close(ctx context.Context) error
}

// Containers groups objects. A container maps to an S3 bucket, a directory,
// a bbolt bucket or a key prefix depending on the backend.
type Containers interface {
	// EnsureContainer creates the container if needed. Creating an existing
	// container is not an error.
	EnsureContainer(ctx context.Context, container string) error
}

// Reader exposes read-related operations.
type Reader interface {
	// Get returns object metadata and a stream the caller must close.
	Get(ctx context.Context, container, key string) (Object, io.ReadCloser, error)
	// Stat returns metadata without streaming the body.
	Stat(ctx context.Context, container, key string) (Object, error)
	// List returns the objects whose key starts with prefix, including custom metadata.
	List(ctx context.Context, container, prefix string) ([]Object, error)
}

// Writer exposes write-related operations.
type Writer interface {
	// Put stores the full content of r under key, replacing any existing object.
	// sizeHint is -1 when the size is unknown.
	Put(ctx context.Context, container, key string, r io.Reader, sizeHint int64, contentType string) (Object, error)
	// SetMeta replaces the custom metadata of an existing object.
	SetMeta(ctx context.Context, container, key string, meta map[string]string) error
}

// Deleter exposes delete behavior.
type Deleter interface {
	Delete(ctx context.Context, container, key string) error
}

// ObjectStorage aggregates the full contract for object backends.
type ObjectStorage interface {
	Lifecycle
	Containers
	Reader
	Writer
	Deleter
}

// CloneMeta returns a copy of meta, or nil when it is empty.
func CloneMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	maps.Copy(out, meta)
	return out
}
