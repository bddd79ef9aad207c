// Package failover writes and reads objects across the registry's backends,
// trying them one at a time in registry order.
package failover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"filegate/internal/keys"
	"filegate/internal/metadata"
	"filegate/internal/metrics"
	"filegate/internal/registry"
	"filegate/pkg/object"

	"github.com/charmbracelet/log"
)

const cleanupTimeout = 30 * time.Second

// Source opens a fresh stream over the file being uploaded. It is called
// once per backend attempt.
type Source func() (io.ReadCloser, error)

// WriteRequest describes one file to store.
type WriteRequest struct {
	Key         keys.ObjectKey
	Filename    string
	Size        int64 // -1 when unknown
	ContentType string
	Open        Source
}

// Placement tells where a file ended up.
type Placement struct {
	LocationTag string
	Container   string
	Path        string
	Size        int64
}

// ReadRequest asks for an object, optionally on one location only.
type ReadRequest struct {
	Key         keys.ObjectKey
	LocationTag string
}

// Download is an object being served. The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	Filename    string
	Size        int64
	ContentType string
	LocationTag string
}

// Executor runs writes and reads against a registry.
type Executor struct {
	reg     *registry.Registry
	logger  *log.Logger
	metrics *metrics.Metrics
	cleanup bool
}

type Option func(*Executor)

func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithOrphanCleanup controls whether a failed attempt deletes what it already
// wrote to that backend. Enabled by default.
func WithOrphanCleanup(enabled bool) Option {
	return func(e *Executor) { e.cleanup = enabled }
}

func New(reg *registry.Registry, opts ...Option) *Executor {
	e := &Executor{
		reg:     reg,
		logger:  log.New(io.Discard),
		cleanup: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Write stores the file on the first backend that accepts it. Each attempt
// ensures the container, opens the source, uploads and tags the object; the
// attempt only counts once tagging succeeded.
func (e *Executor) Write(ctx context.Context, req WriteRequest) (Placement, error) {
	if req.Open == nil {
		return Placement{}, fmt.Errorf("%w: no source", ErrSource)
	}
	if err := req.Key.Validate(); err != nil {
		return Placement{}, err
	}

	backends := e.backends()
	if len(backends) == 0 {
		return Placement{}, ErrNoBackends
	}

	var errs []error
	for _, b := range backends {
		if err := ctx.Err(); err != nil {
			return Placement{}, errors.Join(append([]error{err}, errs...)...)
		}

		res := e.writeTo(ctx, b, req)
		e.metrics.Attempt(b.LocationTag, "write", res.label())

		switch res.kind {
		case outcomeSuccess:
			e.metrics.Uploaded(b.LocationTag, res.value.Size)
			e.logger.Debug("stored object", "location", b.LocationTag, "path", res.value.Path, "size", res.value.Size)
			return res.value, nil
		case outcomeFatal:
			return Placement{}, res.err
		default:
			e.logger.Warn("backend write failed", "location", b.LocationTag, "file", req.Filename, "err", res.err)
			errs = append(errs, res.err)
		}
	}
	return Placement{}, exhausted(ErrAllBackendsExhausted, errs)
}

func (e *Executor) writeTo(ctx context.Context, b registry.Backend, req WriteRequest) outcome[Placement] {
	container := b.Container()
	path := b.Path(req.Key)

	if err := b.Store.EnsureContainer(ctx, container); err != nil {
		return transient[Placement](b.LocationTag, "ensure container", err)
	}

	src, err := req.Open()
	if err != nil {
		return fatal[Placement](fmt.Errorf("%w: %v", ErrSource, err))
	}
	defer src.Close()

	obj, err := b.Store.Put(ctx, container, path, src, req.Size, req.ContentType)
	if err != nil {
		e.removeOrphan(ctx, b, container, path)
		return transient[Placement](b.LocationTag, "put", err)
	}

	size := req.Size
	if size < 0 {
		size = obj.Size
	}
	err = metadata.Tag(ctx, b.Store, container, path, metadata.Tags{
		Filename: req.Filename,
		Size:     size,
		Location: b.LocationTag,
	})
	if err != nil {
		e.removeOrphan(ctx, b, container, path)
		return transient[Placement](b.LocationTag, "tag", err)
	}

	return succeeded(Placement{
		LocationTag: b.LocationTag,
		Container:   container,
		Path:        path,
		Size:        size,
	})
}

// removeOrphan deletes a partially written object. Failures are only logged.
func (e *Executor) removeOrphan(ctx context.Context, b registry.Backend, container, path string) {
	if !e.cleanup {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := b.Store.Delete(ctx, container, path)
	switch {
	case err == nil:
		e.logger.Debug("removed orphaned object", "location", b.LocationTag, "path", path)
	case errors.Is(err, object.ErrNotFound):
	default:
		e.logger.Warn("could not remove orphaned object", "location", b.LocationTag, "path", path, "err", err)
	}
}

// Read finds the object and opens it. With a location tag only that backend
// is asked. Otherwise backends are probed in order; a failing backend is
// skipped unless it is the last one.
func (e *Executor) Read(ctx context.Context, req ReadRequest) (*Download, error) {
	if err := req.Key.Validate(); err != nil {
		return nil, err
	}

	if e.reg == nil {
		return nil, ErrNoBackends
	}

	if req.LocationTag != "" {
		b, ok := e.reg.Lookup(req.LocationTag)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLocation, req.LocationTag)
		}
		res := e.readFrom(ctx, b, req.Key)
		e.metrics.Attempt(b.LocationTag, "read", res.label())
		if res.kind != outcomeSuccess {
			return nil, res.err
		}
		return res.value, nil
	}

	backends := e.backends()
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	for i, b := range backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := e.readFrom(ctx, b, req.Key)
		e.metrics.Attempt(b.LocationTag, "read", res.label())

		switch res.kind {
		case outcomeSuccess:
			return res.value, nil
		case outcomeNotFound:
			continue
		default:
			if i == len(backends)-1 {
				return nil, res.err
			}
			e.logger.Warn("backend read failed, trying next", "location", b.LocationTag, "err", res.err)
		}
	}
	return nil, ErrObjectNotFound
}

func (e *Executor) readFrom(ctx context.Context, b registry.Backend, k keys.ObjectKey) outcome[*Download] {
	container := b.Container()
	path := b.Path(k)

	if _, err := b.Store.Stat(ctx, container, path); err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return notFound[*Download]()
		}
		return transient[*Download](b.LocationTag, "stat", err)
	}

	obj, body, err := b.Store.Get(ctx, container, path)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return notFound[*Download]()
		}
		return transient[*Download](b.LocationTag, "get", err)
	}

	return succeeded(&Download{
		Body:        body,
		Filename:    metadata.Filename(obj.CustomMeta),
		Size:        obj.Size,
		ContentType: obj.ContentType,
		LocationTag: b.LocationTag,
	})
}

func (e *Executor) backends() []registry.Backend {
	if e.reg == nil {
		return nil
	}
	return e.reg.Backends()
}
