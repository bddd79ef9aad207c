package registry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filegate/internal/keys"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecondaries(t *testing.T) {
	descs, skipped := ParseSecondaries(strings.Join([]string{
		"us->file:///srv/us",
		"garbage",
		"a->b->file:///srv/x",
		" ->file:///srv/empty",
		"apac->ftp://nowhere",
		"US->file:///srv/us-again",
		"",
		"  EU-West -> bolt:///srv/eu.db ",
		"North Europe->file:///srv/ne",
		"a/b->file:///srv/slash",
	}, ","))

	require.Len(t, descs, 3)
	assert.Equal(t, "us", descs[0].LocationTag)
	assert.Equal(t, "file", descs[0].Connection.Scheme())
	assert.Equal(t, "eu-west", descs[1].LocationTag)
	assert.Equal(t, "bolt", descs[1].Connection.Scheme())
	assert.Equal(t, "northeurope", descs[2].LocationTag)
	assert.False(t, descs[0].IsPrimary)
	assert.Len(t, skipped, 6)
}

func TestDescribe(t *testing.T) {
	descs, skipped, err := Describe(Config{
		Location:    " EU ",
		Primary:     "file:///srv/eu",
		Secondaries: "eu->file:///srv/dup,us->file:///srv/us",
	})
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.True(t, descs[0].IsPrimary)
	assert.Equal(t, "eu", descs[0].LocationTag)
	assert.Equal(t, "us", descs[1].LocationTag)
	require.Len(t, skipped, 1)

	descs, _, err = Describe(Config{Location: "West Europe", Primary: "file:///srv/we"})
	require.NoError(t, err)
	assert.Equal(t, "westeurope", descs[0].LocationTag)

	_, _, err = Describe(Config{Location: "", Primary: "file:///srv/eu"})
	assert.Error(t, err)
	_, _, err = Describe(Config{Location: " \t ", Primary: "file:///srv/eu"})
	assert.Error(t, err)
	_, _, err = Describe(Config{Location: "eu/west", Primary: "file:///srv/eu"})
	assert.Error(t, err)
	_, _, err = Describe(Config{Location: "eu", Primary: ""})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, _, err = Describe(Config{Location: "eu", Primary: "gopher://x"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestConnection(t *testing.T) {
	conn, err := ParseConnection("S3://AKIA:topsecret@minio:9000?container=uploads&tls=false")
	require.NoError(t, err)
	assert.Equal(t, "s3", conn.Scheme())
	name, ok := conn.SharedContainer()
	assert.True(t, ok)
	assert.Equal(t, "uploads", name)
	assert.Equal(t, "false", conn.Param("tls", "true"))
	assert.Equal(t, "dflt", conn.Param("missing", "dflt"))
	assert.NotContains(t, conn.Redacted(), "topsecret")

	conn, err = ParseConnection("libsql://db.turso.io?authToken=abc123")
	require.NoError(t, err)
	assert.NotContains(t, conn.Redacted(), "abc123")

	conn, err = ParseConnection("file:///srv/data")
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", conn.Target())
}

func TestBackendPaths(t *testing.T) {
	k := keys.ObjectKey{OwnerID: "u1", SessionID: "s1", ObjectID: "o1"}

	own, err := ParseConnection("file:///srv/eu")
	require.NoError(t, err)
	b := Backend{BackendDescriptor: BackendDescriptor{LocationTag: "eu", Connection: own}}
	assert.Equal(t, "eu", b.Container())
	assert.Equal(t, "u1/s1_o1", b.Path(k))
	assert.Equal(t, "u1/", b.OwnerPrefix("u1"))

	shared, err := ParseConnection("file:///srv/all?container=uploads")
	require.NoError(t, err)
	b = Backend{BackendDescriptor: BackendDescriptor{LocationTag: "us", Connection: shared}}
	assert.Equal(t, "uploads", b.Container())
	assert.Equal(t, "us/u1/s1_o1", b.Path(k))
	assert.Equal(t, "us/u1/", b.OwnerPrefix("u1"))
	parsed, ok := b.ParsePath("us/u1/s1_o1")
	require.True(t, ok)
	assert.Equal(t, k, parsed)
	assert.Equal(t, "reports/q1.pdf", b.Path(keys.ObjectKey{ExplicitPath: "reports/q1.pdf"}))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	reg, err := Open(ctx, Config{
		Location: "eu",
		Primary:  "file://" + filepath.ToSlash(filepath.Join(dir, "eu")),
		Secondaries: strings.Join([]string{
			"broken->file://" + filepath.ToSlash(filepath.Join(blocker, "sub")),
			"us->bolt://" + filepath.ToSlash(filepath.Join(dir, "us.db")),
			"apac->sqlite://" + filepath.ToSlash(filepath.Join(dir, "apac.db")),
			"latam->badger://" + filepath.ToSlash(filepath.Join(dir, "latam")),
		}, ","),
	}, log.New(io.Discard))
	require.NoError(t, err)
	defer reg.Close(ctx)

	assert.Equal(t, []string{"eu", "us", "apac", "latam"}, reg.Locations())
	assert.True(t, reg.Primary().IsPrimary)
	assert.Equal(t, "eu", reg.Primary().LocationTag)

	b, ok := reg.Lookup("US")
	require.True(t, ok)
	assert.Equal(t, "us", b.LocationTag)
	assert.False(t, b.IsPrimary)
	_, ok = reg.Lookup("broken")
	assert.False(t, ok)

	backends := reg.Backends()
	backends[0] = Backend{}
	assert.Equal(t, "eu", reg.Backends()[0].LocationTag, "Backends must return a copy")
}

func TestOpenPrimaryFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Open(context.Background(), Config{
		Location: "eu",
		Primary:  "file://" + filepath.ToSlash(filepath.Join(blocker, "sub")),
	}, log.New(io.Discard))
	assert.Error(t, err)
}

func TestNewRequiresBackends(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}
