// Package gateway turns upload and download requests into failover operations.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"filegate/internal/failover"
	"filegate/internal/keys"
	"filegate/internal/metadata"
	"filegate/internal/metrics"
	"filegate/internal/registry"
	"filegate/pkg/api"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// ErrNoOwner is returned when an upload has no owner to file it under.
var ErrNoOwner = errors.New("upload has no owner")

// File is one uploaded file. Open is called once per backend attempt.
type File struct {
	Filename    string
	Size        int64
	ContentType string
	Open        failover.Source
}

type Gateway struct {
	reg     *registry.Registry
	exec    *failover.Executor
	workers int
	logger  *log.Logger
	metrics *metrics.Metrics
}

type Option func(*Gateway)

// WithWorkers bounds how many files of one request are stored concurrently.
func WithWorkers(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.workers = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func New(reg *registry.Registry, exec *failover.Executor, opts ...Option) *Gateway {
	g := &Gateway{
		reg:     reg,
		exec:    exec,
		workers: 4,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Upload stores every file under a fresh upload session. Files that fail on
// every backend are logged and left out of the result, which keeps form order.
func (g *Gateway) Upload(ctx context.Context, owner string, files []File) ([]api.FileDto, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}

	session := keys.NewSessionID()
	results := make([]*api.FileDto, len(files))

	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i, f := range files {
		eg.Go(func() error {
			k := keys.ObjectKey{OwnerID: owner, SessionID: session, ObjectID: keys.NewObjectID()}
			placement, err := g.exec.Write(ctx, writeRequest(k, f))
			if err != nil {
				g.fileFailed("upload", owner, f.Filename, err)
				return nil
			}
			g.metrics.File("upload", metrics.OutcomeSuccess)
			results[i] = &api.FileDto{
				FileID:          k.ObjectID,
				Location:        placement.LocationTag,
				UserID:          owner,
				UploadSessionID: session,
				Filename:        f.Filename,
				SizeInBytes:     placement.Size,
				Path:            placement.Path,
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dtos := make([]api.FileDto, 0, len(files))
	for _, r := range results {
		if r != nil {
			dtos = append(dtos, *r)
		}
	}
	return dtos, nil
}

// UploadToPath writes every file to path verbatim, one at a time in order,
// so the last file wins when several are sent.
func (g *Gateway) UploadToPath(ctx context.Context, owner, path string, files []File) ([]api.FileDto, error) {
	if err := keys.ValidatePath(path); err != nil {
		return nil, err
	}

	dtos := make([]api.FileDto, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		placement, err := g.exec.Write(ctx, writeRequest(keys.ObjectKey{ExplicitPath: path}, f))
		if err != nil {
			g.fileFailed("upload", owner, f.Filename, err)
			continue
		}
		g.metrics.File("upload", metrics.OutcomeSuccess)
		dtos = append(dtos, api.FileDto{
			Location:    placement.LocationTag,
			UserID:      owner,
			Filename:    f.Filename,
			SizeInBytes: placement.Size,
			Path:        placement.Path,
		})
	}
	return dtos, nil
}

// Download opens a file. An empty location probes every backend.
func (g *Gateway) Download(ctx context.Context, location, owner, session, fileID string) (*failover.Download, error) {
	dl, err := g.exec.Read(ctx, failover.ReadRequest{
		Key:         keys.ObjectKey{OwnerID: owner, SessionID: session, ObjectID: fileID},
		LocationTag: location,
	})
	if err != nil {
		if errors.Is(err, failover.ErrObjectNotFound) {
			g.metrics.File("download", metrics.OutcomeNotFound)
		} else {
			g.metrics.File("download", metrics.OutcomeFailed)
		}
		return nil, err
	}
	g.metrics.File("download", metrics.OutcomeSuccess)
	return dl, nil
}

// List collects the owner's files from every backend. Backends that cannot
// be listed are logged and skipped.
func (g *Gateway) List(ctx context.Context, owner string) ([]api.FileDto, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}

	var dtos []api.FileDto
	for _, b := range g.reg.Backends() {
		objects, err := b.Store.List(ctx, b.Container(), b.OwnerPrefix(owner))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("could not list backend", "location", b.LocationTag, "owner", owner, "err", err)
			continue
		}

		for _, obj := range objects {
			k, ok := b.ParsePath(obj.Key)
			if !ok || k.OwnerID != owner {
				continue
			}
			tags := metadata.Decode(obj.CustomMeta)
			size := tags.Size
			if _, ok := metadata.Size(obj.CustomMeta); !ok {
				size = obj.Size
			}
			dto := api.FileDto{
				FileID:          k.ObjectID,
				Location:        b.LocationTag,
				UserID:          owner,
				UploadSessionID: k.SessionID,
				Filename:        tags.Filename,
				SizeInBytes:     size,
				Path:            obj.Key,
			}
			if !obj.LastModified.IsZero() {
				dto.CreatedAt = obj.LastModified.UTC().Format(time.RFC3339)
			}
			dtos = append(dtos, dto)
		}
	}

	sort.SliceStable(dtos, func(i, j int) bool {
		return dtos[i].CreatedAt > dtos[j].CreatedAt
	})
	return dtos, nil
}

func (g *Gateway) fileFailed(op, owner, filename string, err error) {
	g.metrics.File(op, metrics.OutcomeFailed)
	g.logger.Error("file could not be stored", "owner", owner, "file", filename, "err", err)
}

func writeRequest(k keys.ObjectKey, f File) failover.WriteRequest {
	size := f.Size
	if size < 0 {
		size = -1
	}
	return failover.WriteRequest{
		Key:         k,
		Filename:    f.Filename,
		Size:        size,
		ContentType: f.ContentType,
		Open:        f.Open,
	}
}

// Describe is a short summary for startup logs.
func (g *Gateway) Describe() string {
	return fmt.Sprintf("%d backend(s) %v, %d upload workers", len(g.reg.Locations()), g.reg.Locations(), g.workers)
}
