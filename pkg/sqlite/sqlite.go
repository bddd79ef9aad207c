// Package sqlite implements object.ObjectStorage backed by SQLite or libSQL.
package sqlite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"filegate/pkg/object"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config defines how the SQLite storage should be initialized.
type Config struct {
	// Source is the DSN/connection string, e.g. file:objects.db?cache=shared
	// or libsql://db.turso.io?authToken=...
	Source string
	// Driver name registered with database/sql: "sqlite" (default) or "libsql".
	Driver string
	// Table to store objects. Defaults to "objects". Containers live in "<table>_containers".
	Table string
	// DB lets callers supply an existing *sql.DB connection.
	DB *sql.DB
}

// Storage satisfies object.ObjectStorage using a SQLite table.
type Storage struct {
	db         *sql.DB
	table      string
	containers string
	ownsDB     bool
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Init configures the storage and ensures the backing tables exist.
func (s *Storage) Init(ctx context.Context, param any) error {
	cfg, ok := param.(Config)
	if !ok {
		if p, ok := param.(*Config); ok && p != nil {
			cfg = *p
		} else {
			return fmt.Errorf("sqlite: unexpected config type %T", param)
		}
	}

	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.Table == "" {
		cfg.Table = "objects"
	}
	if cfg.Source == "" && cfg.DB == nil {
		return errors.New("sqlite: Source is required")
	}
	if !tableName.MatchString(cfg.Table) {
		return fmt.Errorf("sqlite: invalid table name %q", cfg.Table)
	}
	s.table = cfg.Table
	s.containers = cfg.Table + "_containers"

	if cfg.DB != nil {
		s.db = cfg.DB
	} else {
		db, err := sql.Open(cfg.Driver, cfg.Source)
		if err != nil {
			return fmt.Errorf("sqlite: open database: %w", err)
		}
		if cfg.Driver == "sqlite" {
			// concurrent uploads would otherwise race for the write lock
			db.SetMaxOpenConns(1)
		}
		s.db = db
		s.ownsDB = true
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)`, s.containers),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			container TEXT NOT NULL,
			key TEXT NOT NULL,
			data BLOB,
			size INTEGER NOT NULL,
			etag TEXT,
			content_type TEXT,
			last_modified TEXT NOT NULL,
			meta TEXT,
			PRIMARY KEY (container, key)
		)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			_ = s.Close(ctx)
			return fmt.Errorf("sqlite: create table: %w", err)
		}
	}

	return nil
}

// Close releases the DB connection when owned by the storage.
func (s *Storage) Close(_ context.Context) error {
	if s.db != nil && s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// EnsureContainer records the container name.
func (s *Storage) EnsureContainer(ctx context.Context, container string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, s.containers)
	if _, err := s.db.ExecContext(ctx, query, container, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("sqlite: ensure container: %w", err)
	}
	return nil
}

// Put stores an object, replacing existing content. Custom metadata is cleared.
func (s *Storage) Put(ctx context.Context, container, key string, r io.Reader, _ int64, contentType string) (object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, fmt.Errorf("sqlite: read content: %w", err)
	}

	now := time.Now().UTC()
	obj := object.Object{
		Container:    container,
		Key:          key,
		Size:         int64(len(data)),
		ETag:         hashETag(data),
		ContentType:  contentType,
		LastModified: now,
	}

	query := fmt.Sprintf(`INSERT INTO %s (container, key, data, size, etag, content_type, last_modified, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(container, key) DO UPDATE SET data=excluded.data, size=excluded.size, etag=excluded.etag,
			content_type=excluded.content_type, last_modified=excluded.last_modified, meta=NULL`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		container,
		key,
		data,
		obj.Size,
		nullIfEmpty(obj.ETag),
		nullIfEmpty(contentType),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return object.Object{}, fmt.Errorf("sqlite: put object: %w", err)
	}

	return obj, nil
}

// SetMeta replaces the custom metadata of an existing object.
func (s *Storage) SetMeta(ctx context.Context, container, key string, meta map[string]string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET meta = ? WHERE container = ? AND key = ?`, s.table)
	res, err := s.db.ExecContext(ctx, query, nullIfEmpty(metaJSON), container, key)
	if err != nil {
		return fmt.Errorf("sqlite: set metadata: %w", err)
	}
	return notFoundIfNone(res)
}

// Get retrieves the object data and metadata.
func (s *Storage) Get(ctx context.Context, container, key string) (object.Object, io.ReadCloser, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, nil, err
	}

	query := fmt.Sprintf(`SELECT size, etag, content_type, last_modified, meta, data FROM %s WHERE container = ? AND key = ?`, s.table)
	var (
		row  objectRow
		data []byte
	)
	err := s.db.QueryRowContext(ctx, query, container, key).
		Scan(&row.size, &row.etag, &row.contentType, &row.lastModified, &row.meta, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return object.Object{}, nil, object.ErrNotFound
	}
	if err != nil {
		return object.Object{}, nil, fmt.Errorf("sqlite: get object: %w", err)
	}

	obj, err := row.toObject(container, key)
	if err != nil {
		return object.Object{}, nil, err
	}
	return obj, io.NopCloser(bytes.NewReader(data)), nil
}

// Stat fetches metadata without reading the body.
func (s *Storage) Stat(ctx context.Context, container, key string) (object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return object.Object{}, err
	}

	query := fmt.Sprintf(`SELECT size, etag, content_type, last_modified, meta FROM %s WHERE container = ? AND key = ?`, s.table)
	var row objectRow
	err := s.db.QueryRowContext(ctx, query, container, key).
		Scan(&row.size, &row.etag, &row.contentType, &row.lastModified, &row.meta)
	if errors.Is(err, sql.ErrNoRows) {
		return object.Object{}, object.ErrNotFound
	}
	if err != nil {
		return object.Object{}, fmt.Errorf("sqlite: stat object: %w", err)
	}

	return row.toObject(container, key)
}

// List returns all objects in container whose key starts with prefix.
func (s *Storage) List(ctx context.Context, container, prefix string) ([]object.Object, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT key, size, etag, content_type, last_modified, meta FROM %s
		WHERE container = ? AND key LIKE ? ESCAPE '\' ORDER BY key ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, query, container, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list objects: %w", err)
	}
	defer rows.Close()

	var objects []object.Object
	for rows.Next() {
		var (
			key string
			row objectRow
		)
		if err := rows.Scan(&key, &row.size, &row.etag, &row.contentType, &row.lastModified, &row.meta); err != nil {
			return nil, fmt.Errorf("sqlite: scan object: %w", err)
		}

		obj, err := row.toObject(container, key)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate objects: %w", err)
	}

	return objects, nil
}

// Delete removes an object by key.
func (s *Storage) Delete(ctx context.Context, container, key string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE container = ? AND key = ?`, s.table)
	res, err := s.db.ExecContext(ctx, query, container, key)
	if err != nil {
		return fmt.Errorf("sqlite: delete object: %w", err)
	}
	return notFoundIfNone(res)
}

func (s *Storage) ensureDB() error {
	if s.db == nil {
		return errors.New("sqlite: storage not initialized")
	}
	return nil
}

type objectRow struct {
	size         int64
	etag         sql.NullString
	contentType  sql.NullString
	lastModified string
	meta         sql.NullString
}

func (r objectRow) toObject(container, key string) (object.Object, error) {
	t, err := time.Parse(time.RFC3339Nano, r.lastModified)
	if err != nil {
		return object.Object{}, fmt.Errorf("sqlite: parse last_modified: %w", err)
	}

	meta, err := decodeMeta(r.meta.String)
	if err != nil {
		return object.Object{}, err
	}

	return object.Object{
		Container:    container,
		Key:          key,
		Size:         r.size,
		ETag:         r.etag.String,
		ContentType:  r.contentType.String,
		LastModified: t,
		CustomMeta:   meta,
	}, nil
}

func notFoundIfNone(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return object.ErrNotFound
	}
	return nil
}

func hashETag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeMeta(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal metadata: %w", err)
	}
	return string(b), nil
}

func decodeMeta(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure Storage implements ObjectStorage interface.
var _ object.ObjectStorage = (*Storage)(nil)
