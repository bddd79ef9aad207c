// Package badgerstore implements object.ObjectStorage on an embedded Badger database.
//
// Keys are laid out as
//
//	c\x00<container>            container marker
//	m\x00<container>\x00<key>   JSON object record
//	d\x00<container>\x00<key>   object body
package badgerstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"filegate/pkg/object"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v3"
)

// Config selects the database directory.
type Config struct {
	Dir string
	// InMemory keeps everything in RAM; Dir is ignored.
	InMemory bool
	// Logger receives badger's internal logs. Nil silences them.
	Logger *log.Logger
}

// Storage satisfies object.ObjectStorage using Badger.
type Storage struct {
	db *badger.DB
}

type record struct {
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"contentType,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Init opens the database.
func (s *Storage) Init(_ context.Context, param any) error {
	cfg, ok := param.(Config)
	if !ok {
		if p, ok := param.(*Config); ok && p != nil {
			cfg = *p
		} else {
			return fmt.Errorf("badger: unexpected config type %T", param)
		}
	}
	if cfg.Dir == "" && !cfg.InMemory {
		return errors.New("badger: Dir is required")
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(newLogger(cfg.Logger)).
		WithLoggingLevel(badger.WARNING).
		WithMemTableSize(16 << 20)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("badger: open: %w", err)
	}
	s.db = db
	return nil
}

// Close flushes and closes the database.
func (s *Storage) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// EnsureContainer writes the container marker.
func (s *Storage) EnsureContainer(_ context.Context, container string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(containerKey(container), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
}

// Put buffers the body and commits record and body in one transaction.
func (s *Storage) Put(ctx context.Context, container, key string, r io.Reader, _ int64, contentType string) (object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, fmt.Errorf("badger: read content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	sum := sha256.Sum256(data)
	rec := record{
		Size:         int64(len(data)),
		ETag:         hex.EncodeToString(sum[:]),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return object.Object{}, fmt.Errorf("badger: encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(container, key), raw); err != nil {
			return err
		}
		return txn.Set(dataKey(container, key), data)
	})
	if err != nil {
		return object.Object{}, fmt.Errorf("badger: put object: %w", err)
	}
	return rec.toObject(container, key), nil
}

// SetMeta rewrites the record of an existing object.
func (s *Storage) SetMeta(_ context.Context, container, key string, meta map[string]string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, container, key)
		if err != nil {
			return err
		}
		rec.Meta = object.CloneMeta(meta)
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("badger: encode record: %w", err)
		}
		return txn.Set(recordKey(container, key), raw)
	})
}

// Get copies the body out of the database.
func (s *Storage) Get(_ context.Context, container, key string) (object.Object, io.ReadCloser, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, nil, err
	}

	var (
		rec  record
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if rec, err = readRecord(txn, container, key); err != nil {
			return err
		}
		item, err := txn.Get(dataKey(container, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return object.ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return object.Object{}, nil, wrap("get object", err)
	}
	return rec.toObject(container, key), io.NopCloser(bytes.NewReader(data)), nil
}

// Stat reads the object record.
func (s *Storage) Stat(_ context.Context, container, key string) (object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, err
	}

	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, container, key)
		return err
	})
	if err != nil {
		return object.Object{}, wrap("stat object", err)
	}
	return rec.toObject(container, key), nil
}

// List iterates over the records of container.
func (s *Storage) List(ctx context.Context, container, prefix string) ([]object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	base := recordKey(container, "")
	var objects []object.Object
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := recordKey(container, prefix)
		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), string(base))

			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode record %s: %w", key, err)
			}
			objects = append(objects, rec.toObject(container, key))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list objects", err)
	}
	return objects, nil
}

// Delete removes record and body.
func (s *Storage) Delete(_ context.Context, container, key string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(container, key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return object.ErrNotFound
			}
			return err
		}
		if err := txn.Delete(recordKey(container, key)); err != nil {
			return err
		}
		return txn.Delete(dataKey(container, key))
	})
	return wrap("delete object", err)
}

func (s *Storage) ensureDB() error {
	if s.db == nil {
		return errors.New("badger: storage not initialized")
	}
	return nil
}

func readRecord(txn *badger.Txn, container, key string) (record, error) {
	item, err := txn.Get(recordKey(container, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record{}, object.ErrNotFound
	}
	if err != nil {
		return record{}, err
	}

	var rec record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return record{}, fmt.Errorf("decode record %s: %w", key, err)
	}
	return rec, nil
}

func (r record) toObject(container, key string) object.Object {
	return object.Object{
		Container:    container,
		Key:          key,
		Size:         r.Size,
		ETag:         r.ETag,
		ContentType:  r.ContentType,
		LastModified: r.LastModified,
		CustomMeta:   object.CloneMeta(r.Meta),
	}
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, object.ErrNotFound) {
		return err
	}
	return fmt.Errorf("badger: %s: %w", op, err)
}

func containerKey(container string) []byte {
	return []byte("c\x00" + container)
}

func recordKey(container, key string) []byte {
	return []byte("m\x00" + container + "\x00" + key)
}

func dataKey(container, key string) []byte {
	return []byte("d\x00" + container + "\x00" + key)
}

// Ensure Storage implements ObjectStorage interface.
var _ object.ObjectStorage = (*Storage)(nil)
