// Package registry holds the ordered list of storage backends the gateway
// writes to and reads from. The primary backend always comes first.
package registry

import (
	"context"
	"errors"
	"fmt"

	"filegate/internal/keys"
	"filegate/pkg/object"

	"github.com/charmbracelet/log"
)

// Backend is an opened storage together with its descriptor.
type Backend struct {
	BackendDescriptor
	Store object.ObjectStorage
}

// Container is the container objects are written to. Unless the descriptor
// names a shared container, each location writes to a container of its own name.
func (b Backend) Container() string {
	if name, ok := b.Connection.SharedContainer(); ok {
		return name
	}
	return b.LocationTag
}

// Shared reports whether the container is shared with other locations.
func (b Backend) Shared() bool {
	_, ok := b.Connection.SharedContainer()
	return ok
}

// Path is the storage path of k on this backend.
func (b Backend) Path(k keys.ObjectKey) string {
	if b.Shared() {
		return keys.BuildNamespaced(b.LocationTag, k.OwnerID, k.SessionID, k.ObjectID, k.ExplicitPath)
	}
	return k.Path()
}

// OwnerPrefix is the listing prefix for every object of owner on this backend.
func (b Backend) OwnerPrefix(owner string) string {
	if b.Shared() {
		return b.LocationTag + "/" + owner + "/"
	}
	return owner + "/"
}

// ParsePath is the inverse of Path for generated keys.
func (b Backend) ParsePath(path string) (keys.ObjectKey, bool) {
	if b.Shared() {
		return keys.ParseNamespaced(b.LocationTag, path)
	}
	return keys.Parse(path)
}

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	backends []Backend
	byTag    map[string]int
}

// New builds a registry from already opened backends.
func New(backends ...Backend) (*Registry, error) {
	if len(backends) == 0 {
		return nil, errors.New("registry: no backends")
	}
	r := &Registry{
		backends: make([]Backend, len(backends)),
		byTag:    make(map[string]int, len(backends)),
	}
	for i, b := range backends {
		if _, dup := r.byTag[b.LocationTag]; dup {
			return nil, fmt.Errorf("registry: duplicate location %q", b.LocationTag)
		}
		if b.Store == nil {
			return nil, fmt.Errorf("registry: backend %q has no storage", b.LocationTag)
		}
		b.IsPrimary = i == 0
		r.backends[i] = b
		r.byTag[b.LocationTag] = i
	}
	return r, nil
}

// Open describes cfg and opens every backend. A primary that fails to open is
// fatal; failing secondaries are logged and left out.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Registry, error) {
	descs, skipped, err := Describe(cfg)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		logger.Warn("skipping secondary backend", "entry", s.Entry, "reason", s.Reason)
	}

	var backends []Backend
	for _, d := range descs {
		store, err := OpenStorage(ctx, d.Connection, logger)
		if err != nil {
			if d.IsPrimary {
				closeAll(ctx, backends)
				return nil, fmt.Errorf("open primary backend %s: %w", d.LocationTag, err)
			}
			logger.Error("skipping secondary backend", "location", d.LocationTag, "target", d.Connection.Redacted(), "err", err)
			continue
		}
		backends = append(backends, Backend{BackendDescriptor: d, Store: store})
		logger.Info("backend ready",
			"location", d.LocationTag,
			"scheme", d.Connection.Scheme(),
			"primary", d.IsPrimary,
			"container", Backend{BackendDescriptor: d}.Container(),
		)
	}
	return New(backends...)
}

// Backends returns the backends in failover order.
func (r *Registry) Backends() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Primary returns the first backend.
func (r *Registry) Primary() Backend {
	return r.backends[0]
}

// Lookup finds a backend by location tag.
func (r *Registry) Lookup(tag string) (Backend, bool) {
	tag, ok := NormalizeLocation(tag)
	if !ok {
		return Backend{}, false
	}
	i, ok := r.byTag[tag]
	if !ok {
		return Backend{}, false
	}
	return r.backends[i], true
}

// Locations lists the location tags in failover order.
func (r *Registry) Locations() []string {
	tags := make([]string, len(r.backends))
	for i, b := range r.backends {
		tags[i] = b.LocationTag
	}
	return tags
}

// Close closes every backend.
func (r *Registry) Close(ctx context.Context) error {
	return closeAll(ctx, r.backends)
}

func closeAll(ctx context.Context, backends []Backend) error {
	var errs []error
	for _, b := range backends {
		if err := b.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.LocationTag, err))
		}
	}
	return errors.Join(errs...)
}
