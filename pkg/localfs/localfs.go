// Package localfs implements object.ObjectStorage on a local directory tree.
//
// Every container is a directory below the root and every key a file inside it.
// Object attributes live in JSON sidecars under <root>/.filegate-meta so that
// listing a container never has to parse file contents.
package localfs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filegate/pkg/object"
)

const (
	metaDir    = ".filegate-meta"
	tempPrefix = ".upload-"
)

// Config points the storage at a directory. It is created when missing.
type Config struct {
	Root string
}

// Storage satisfies object.ObjectStorage on the local filesystem.
type Storage struct {
	root string
}

type sidecar struct {
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"contentType,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Init resolves and creates the root directory.
func (s *Storage) Init(_ context.Context, param any) error {
	cfg, ok := param.(Config)
	if !ok {
		if p, ok := param.(*Config); ok && p != nil {
			cfg = *p
		} else {
			return fmt.Errorf("localfs: unexpected config type %T", param)
		}
	}
	if cfg.Root == "" {
		return errors.New("localfs: Root is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("localfs: resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, metaDir), 0o755); err != nil {
		return fmt.Errorf("localfs: create root: %w", err)
	}
	s.root = root
	return nil
}

// Close is a no-op.
func (s *Storage) Close(_ context.Context) error {
	return nil
}

// EnsureContainer creates the container directory.
func (s *Storage) EnsureContainer(_ context.Context, container string) error {
	dir, err := s.containerPath(container)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("localfs: create container: %w", err)
	}
	return nil
}

// Put writes the body to a temporary file and renames it into place.
func (s *Storage) Put(ctx context.Context, container, key string, r io.Reader, _ int64, contentType string) (object.Object, error) {
	dataPath, sidePath, err := s.paths(container, key)
	if err != nil {
		return object.Object{}, err
	}
	dir, _ := s.containerPath(container)
	if _, err := os.Stat(dir); err != nil {
		return object.Object{}, s.statErr(err)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return object.Object{}, fmt.Errorf("localfs: create parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), tempPrefix+"*")
	if err != nil {
		return object.Object{}, fmt.Errorf("localfs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), contextReader{ctx: ctx, r: r})
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return object.Object{}, fmt.Errorf("localfs: write object: %w", err)
	}

	side := sidecar{
		Size:         size,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return object.Object{}, fmt.Errorf("localfs: commit object: %w", err)
	}
	if err := writeSidecar(sidePath, side); err != nil {
		return object.Object{}, err
	}

	return side.toObject(container, key), nil
}

// SetMeta rewrites the sidecar of an existing object.
func (s *Storage) SetMeta(_ context.Context, container, key string, meta map[string]string) error {
	dataPath, sidePath, err := s.paths(container, key)
	if err != nil {
		return err
	}
	side, err := s.load(dataPath, sidePath)
	if err != nil {
		return err
	}
	side.Meta = object.CloneMeta(meta)
	return writeSidecar(sidePath, side)
}

// Get opens the object file for streaming.
func (s *Storage) Get(_ context.Context, container, key string) (object.Object, io.ReadCloser, error) {
	dataPath, sidePath, err := s.paths(container, key)
	if err != nil {
		return object.Object{}, nil, err
	}
	side, err := s.load(dataPath, sidePath)
	if err != nil {
		return object.Object{}, nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return object.Object{}, nil, s.statErr(err)
	}
	return side.toObject(container, key), f, nil
}

// Stat reads the sidecar, falling back to file attributes when it is missing.
func (s *Storage) Stat(_ context.Context, container, key string) (object.Object, error) {
	dataPath, sidePath, err := s.paths(container, key)
	if err != nil {
		return object.Object{}, err
	}
	side, err := s.load(dataPath, sidePath)
	if err != nil {
		return object.Object{}, err
	}
	return side.toObject(container, key), nil
}

// List walks the container directory.
func (s *Storage) List(ctx context.Context, container, prefix string) ([]object.Object, error) {
	dir, err := s.containerPath(container)
	if err != nil {
		return nil, err
	}

	var objects []object.Object
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		obj, err := s.Stat(ctx, container, key)
		if errors.Is(err, object.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localfs: list %s: %w", container, err)
	}
	return objects, nil
}

// Delete removes the object and its sidecar.
func (s *Storage) Delete(_ context.Context, container, key string) error {
	dataPath, sidePath, err := s.paths(container, key)
	if err != nil {
		return err
	}
	if err := os.Remove(dataPath); err != nil {
		return s.statErr(err)
	}
	if err := os.Remove(sidePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("localfs: remove metadata: %w", err)
	}
	return nil
}

func (s *Storage) containerPath(container string) (string, error) {
	if s.root == "" {
		return "", errors.New("localfs: storage not initialized")
	}
	if container == "" || container == "." || container == ".." ||
		strings.HasPrefix(container, ".") || strings.ContainsAny(container, `/\`+"\x00") {
		return "", fmt.Errorf("localfs: invalid container %q", container)
	}
	return filepath.Join(s.root, container), nil
}

// paths resolves the data and sidecar files of key, rejecting keys that
// would escape the container directory.
func (s *Storage) paths(container, key string) (string, string, error) {
	dir, err := s.containerPath(container)
	if err != nil {
		return "", "", err
	}
	if key == "" || strings.Contains(key, "\x00") {
		return "", "", fmt.Errorf("localfs: invalid key %q", key)
	}

	rel := filepath.FromSlash(key)
	dataPath := filepath.Join(dir, rel)
	if !strings.HasPrefix(dataPath, dir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("localfs: invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if strings.HasPrefix(part, tempPrefix) {
			return "", "", fmt.Errorf("localfs: invalid key %q", key)
		}
	}
	return dataPath, filepath.Join(s.root, metaDir, container, rel+".json"), nil
}

func (s *Storage) load(dataPath, sidePath string) (sidecar, error) {
	info, err := os.Stat(dataPath)
	if err != nil {
		return sidecar{}, s.statErr(err)
	}
	if info.IsDir() {
		return sidecar{}, object.ErrNotFound
	}

	raw, err := os.ReadFile(sidePath)
	if errors.Is(err, fs.ErrNotExist) {
		return sidecar{Size: info.Size(), LastModified: info.ModTime().UTC()}, nil
	}
	if err != nil {
		return sidecar{}, fmt.Errorf("localfs: read metadata: %w", err)
	}

	var side sidecar
	if err := json.Unmarshal(raw, &side); err != nil {
		return sidecar{}, fmt.Errorf("localfs: decode metadata: %w", err)
	}
	side.Size = info.Size()
	return side, nil
}

func (s *Storage) statErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return object.ErrNotFound
	}
	return fmt.Errorf("localfs: %w", err)
}

func writeSidecar(path string, side sidecar) error {
	raw, err := json.Marshal(side)
	if err != nil {
		return fmt.Errorf("localfs: encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("localfs: create metadata dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("localfs: create metadata: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(raw)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("localfs: write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("localfs: commit metadata: %w", err)
	}
	return nil
}

func (side sidecar) toObject(container, key string) object.Object {
	return object.Object{
		Container:    container,
		Key:          key,
		Size:         side.Size,
		ETag:         side.ETag,
		ContentType:  side.ContentType,
		LastModified: side.LastModified,
		CustomMeta:   object.CloneMeta(side.Meta),
	}
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Ensure Storage implements ObjectStorage interface.
var _ object.ObjectStorage = (*Storage)(nil)
