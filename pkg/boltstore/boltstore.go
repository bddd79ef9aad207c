// Package boltstore implements object.ObjectStorage in a single bbolt file.
// Each container is a top-level bucket holding a "data" and an "info" bucket.
package boltstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"filegate/pkg/object"

	"go.etcd.io/bbolt"
)

var (
	dataBucket = []byte("data")
	infoBucket = []byte("info")
)

// Config points the storage at its database file.
type Config struct {
	Path    string
	Timeout time.Duration // waiting for the file lock; defaults to 5s
}

// Storage satisfies object.ObjectStorage using bbolt.
type Storage struct {
	db *bbolt.DB
}

type info struct {
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"contentType,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Init opens (or creates) the database file.
func (s *Storage) Init(_ context.Context, param any) error {
	cfg, ok := param.(Config)
	if !ok {
		if p, ok := param.(*Config); ok && p != nil {
			cfg = *p
		} else {
			return fmt.Errorf("bolt: unexpected config type %T", param)
		}
	}
	if cfg.Path == "" {
		return errors.New("bolt: Path is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return fmt.Errorf("bolt: create directory: %w", err)
	}

	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return fmt.Errorf("bolt: open %s: %w", cfg.Path, err)
	}
	s.db = db
	return nil
}

// Close closes the database file.
func (s *Storage) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// EnsureContainer creates the container bucket and its children.
func (s *Storage) EnsureContainer(_ context.Context, container string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(container))
		if err != nil {
			return fmt.Errorf("bolt: create container %s: %w", container, err)
		}
		for _, name := range [][]byte{dataBucket, infoBucket} {
			if _, err := root.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bolt: create container %s: %w", container, err)
			}
		}
		return nil
	})
}

// Put stores the object; the container must exist.
func (s *Storage) Put(ctx context.Context, container, key string, r io.Reader, _ int64, contentType string) (object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, fmt.Errorf("bolt: read content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	sum := sha256.Sum256(data)
	in := info{
		Size:         int64(len(data)),
		ETag:         hex.EncodeToString(sum[:]),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		blobs, infos := buckets(tx, container)
		if blobs == nil {
			return object.ErrNotFound
		}
		if err := blobs.Put([]byte(key), data); err != nil {
			return err
		}
		return putInfo(infos, key, in)
	})
	if err != nil {
		return object.Object{}, wrap("put object", err)
	}
	return in.toObject(container, key), nil
}

// SetMeta replaces the custom metadata of an existing object.
func (s *Storage) SetMeta(_ context.Context, container, key string, meta map[string]string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, infos := buckets(tx, container)
		in, err := getInfo(infos, key)
		if err != nil {
			return err
		}
		in.Meta = object.CloneMeta(meta)
		return putInfo(infos, key, in)
	})
	return wrap("set metadata", err)
}

// Get copies the body out of the transaction.
func (s *Storage) Get(_ context.Context, container, key string) (object.Object, io.ReadCloser, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, nil, err
	}

	var (
		in   info
		body []byte
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		blobs, infos := buckets(tx, container)
		var err error
		if in, err = getInfo(infos, key); err != nil {
			return err
		}
		raw := blobs.Get([]byte(key))
		if raw == nil {
			return object.ErrNotFound
		}
		// bbolt memory is only valid inside the transaction
		body = bytes.Clone(raw)
		return nil
	})
	if err != nil {
		return object.Object{}, nil, wrap("get object", err)
	}
	return in.toObject(container, key), io.NopCloser(bytes.NewReader(body)), nil
}

// Stat reads the info record.
func (s *Storage) Stat(_ context.Context, container, key string) (object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, err
	}

	var in info
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, infos := buckets(tx, container)
		var err error
		in, err = getInfo(infos, key)
		return err
	})
	if err != nil {
		return object.Object{}, wrap("stat object", err)
	}
	return in.toObject(container, key), nil
}

// List scans the info bucket from prefix onwards.
func (s *Storage) List(ctx context.Context, container, prefix string) ([]object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	var objects []object.Object
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, infos := buckets(tx, container)
		if infos == nil {
			return nil
		}

		p := []byte(prefix)
		c := infos.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var in info
			if err := json.Unmarshal(v, &in); err != nil {
				return fmt.Errorf("decode info %s: %w", k, err)
			}
			objects = append(objects, in.toObject(container, string(k)))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list objects", err)
	}
	return objects, nil
}

// Delete removes body and info.
func (s *Storage) Delete(_ context.Context, container, key string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		blobs, infos := buckets(tx, container)
		if infos == nil || infos.Get([]byte(key)) == nil {
			return object.ErrNotFound
		}
		if err := infos.Delete([]byte(key)); err != nil {
			return err
		}
		return blobs.Delete([]byte(key))
	})
	return wrap("delete object", err)
}

func (s *Storage) ensureDB() error {
	if s.db == nil {
		return errors.New("bolt: storage not initialized")
	}
	return nil
}

// buckets returns nil buckets when the container does not exist.
func buckets(tx *bbolt.Tx, container string) (*bbolt.Bucket, *bbolt.Bucket) {
	root := tx.Bucket([]byte(container))
	if root == nil {
		return nil, nil
	}
	return root.Bucket(dataBucket), root.Bucket(infoBucket)
}

func getInfo(infos *bbolt.Bucket, key string) (info, error) {
	if infos == nil {
		return info{}, object.ErrNotFound
	}
	raw := infos.Get([]byte(key))
	if raw == nil {
		return info{}, object.ErrNotFound
	}
	var in info
	if err := json.Unmarshal(raw, &in); err != nil {
		return info{}, fmt.Errorf("decode info %s: %w", key, err)
	}
	return in, nil
}

func putInfo(infos *bbolt.Bucket, key string, in info) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode info %s: %w", key, err)
	}
	return infos.Put([]byte(key), raw)
}

func (in info) toObject(container, key string) object.Object {
	return object.Object{
		Container:    container,
		Key:          key,
		Size:         in.Size,
		ETag:         in.ETag,
		ContentType:  in.ContentType,
		LastModified: in.LastModified,
		CustomMeta:   object.CloneMeta(in.Meta),
	}
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, object.ErrNotFound) {
		return err
	}
	return fmt.Errorf("bolt: %s: %w", op, err)
}

// Ensure Storage implements ObjectStorage interface.
var _ object.ObjectStorage = (*Storage)(nil)
