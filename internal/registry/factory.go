package registry

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"filegate/pkg/badgerstore"
	"filegate/pkg/boltstore"
	"filegate/pkg/localfs"
	"filegate/pkg/object"
	"filegate/pkg/s3"
	"filegate/pkg/sqlite"

	"github.com/charmbracelet/log"
)

// opener builds the storage for one connection and returns it with its init parameter.
type opener func(conn Connection, logger *log.Logger) (object.ObjectStorage, any, error)

var openers = map[string]opener{
	"s3":     openS3,
	"r2":     openR2,
	"sqlite": openSQLite,
	"libsql": openLibSQL,
	"file":   openLocalFS,
	"badger": openBadger,
	"bolt":   openBolt,
}

// OpenStorage initializes the backend a connection descriptor points at.
func OpenStorage(ctx context.Context, conn Connection, logger *log.Logger) (object.ObjectStorage, error) {
	open, ok := openers[conn.Scheme()]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDescriptor, conn.Scheme())
	}
	store, param, err := open(conn, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx, param); err != nil {
		return nil, err
	}
	return store, nil
}

func credentials(u *url.URL) (string, string) {
	if u.User == nil {
		return "", ""
	}
	secret, _ := u.User.Password()
	return u.User.Username(), secret
}

// openS3 handles s3://KEY:SECRET@host:port?region=&tls=&path_style=.
// The host "aws" selects the regular AWS endpoints.
func openS3(conn Connection, _ *log.Logger) (object.ObjectStorage, any, error) {
	key, secret := credentials(conn.URL)
	cfg := s3.Config{
		AccessKey:       key,
		SecretAccessKey: secret,
		Region:          conn.Param("region", ""),
	}

	if host := conn.URL.Host; host != "" && !strings.EqualFold(host, "aws") {
		scheme := "https"
		if tls, err := strconv.ParseBool(conn.Param("tls", "true")); err == nil && !tls {
			scheme = "http"
		}
		cfg.EndpointOverride = scheme + "://" + host
		cfg.UsePathStyle = true
	}
	if v := conn.Param("path_style", ""); v != "" {
		pathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: path_style: %v", ErrInvalidDescriptor, err)
		}
		cfg.UsePathStyle = pathStyle
	}
	if v := conn.Param("part_size_mb", ""); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: part_size_mb: %v", ErrInvalidDescriptor, err)
		}
		cfg.PartSize = mb << 20
	}
	return &s3.Storage{}, cfg, nil
}

// openR2 handles r2://KEY:SECRET@ACCOUNT_ID.
func openR2(conn Connection, _ *log.Logger) (object.ObjectStorage, any, error) {
	key, secret := credentials(conn.URL)
	if conn.URL.Host == "" {
		return nil, nil, fmt.Errorf("%w: r2 needs an account id", ErrInvalidDescriptor)
	}
	return &s3.Storage{}, s3.Config{
		AccountID:       conn.URL.Host,
		AccessKey:       key,
		SecretAccessKey: secret,
	}, nil
}

// openSQLite handles sqlite:///path/to/objects.db?table=.
func openSQLite(conn Connection, _ *log.Logger) (object.ObjectStorage, any, error) {
	path := filepath.FromSlash(conn.Target())
	return &sqlite.Storage{}, sqlite.Config{
		Source: "file:" + path + "?cache=shared&mode=rwc&_pragma=busy_timeout(5000)",
		Driver: "sqlite",
		Table:  conn.Param("table", ""),
	}, nil
}

// openLibSQL passes the descriptor through to the libSQL driver, minus our own parameters.
func openLibSQL(conn Connection, _ *log.Logger) (object.ObjectStorage, any, error) {
	u := *conn.URL
	q := u.Query()
	table := q.Get("table")
	q.Del("container")
	q.Del("table")
	u.RawQuery = q.Encode()
	return &sqlite.Storage{}, sqlite.Config{
		Source: u.String(),
		Driver: "libsql",
		Table:  table,
	}, nil
}

// openLocalFS handles file:///srv/uploads.
func openLocalFS(conn Connection, _ *log.Logger) (object.ObjectStorage, any, error) {
	return &localfs.Storage{}, localfs.Config{Root: filepath.FromSlash(conn.Target())}, nil
}

// openBadger handles badger:///var/lib/filegate/badger.
func openBadger(conn Connection, logger *log.Logger) (object.ObjectStorage, any, error) {
	return &badgerstore.Storage{}, badgerstore.Config{
		Dir:    filepath.FromSlash(conn.Target()),
		Logger: logger,
	}, nil
}

// openBolt handles bolt:///var/lib/filegate/objects.db.
func openBolt(conn Connection, _ *log.Logger) (object.ObjectStorage, any, error) {
	return &boltstore.Storage{}, boltstore.Config{Path: filepath.FromSlash(conn.Target())}, nil
}
