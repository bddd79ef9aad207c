package gateway

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"filegate/internal/failover"
	"filegate/internal/keys"
	"filegate/internal/registry"
	"filegate/pkg/localfs"
	"filegate/pkg/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poisonType = "application/x-poison"

// flakyStore fails Put for poisoned content types, or always when down is set.
type flakyStore struct {
	object.ObjectStorage
	down bool
	puts atomic.Int32
}

func (f *flakyStore) Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) (object.Object, error) {
	f.puts.Add(1)
	if f.down || contentType == poisonType {
		return object.Object{}, errors.New("backend unavailable")
	}
	return f.ObjectStorage.Put(ctx, container, key, r, size, contentType)
}

func newStores(t *testing.T, tags ...string) (*registry.Registry, map[string]*flakyStore) {
	t.Helper()
	stores := map[string]*flakyStore{}
	var backends []registry.Backend
	for _, tag := range tags {
		fs := &localfs.Storage{}
		require.NoError(t, fs.Init(context.Background(), localfs.Config{Root: filepath.Join(t.TempDir(), tag)}))
		stores[tag] = &flakyStore{ObjectStorage: fs}
		backends = append(backends, registry.Backend{
			BackendDescriptor: registry.BackendDescriptor{LocationTag: tag},
			Store:             stores[tag],
		})
	}
	reg, err := registry.New(backends...)
	require.NoError(t, err)
	return reg, stores
}

func textFile(name, content string) File {
	return File{
		Filename:    name,
		Size:        int64(len(content)),
		ContentType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func newGateway(reg *registry.Registry) *Gateway {
	return New(reg, failover.New(reg), WithWorkers(2))
}

func TestUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	reg, _ := newStores(t, "eu", "us")
	g := newGateway(reg)

	dtos, err := g.Upload(ctx, "u1", []File{
		textFile("a.txt", "alpha"),
		textFile("b.txt", "bravo!"),
		textFile("c.txt", "charlie"),
	})
	require.NoError(t, err)
	require.Len(t, dtos, 3)

	ids := map[string]bool{}
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		assert.Equal(t, name, dtos[i].Filename, "results keep form order")
		assert.Equal(t, "eu", dtos[i].Location)
		assert.Equal(t, "u1", dtos[i].UserID)
		assert.Equal(t, dtos[0].UploadSessionID, dtos[i].UploadSessionID)
		assert.Equal(t, keys.Build("u1", dtos[i].UploadSessionID, dtos[i].FileID, ""), dtos[i].Path)
		ids[dtos[i].FileID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, int64(6), dtos[1].SizeInBytes)

	dl, err := g.Download(ctx, dtos[1].Location, "u1", dtos[1].UploadSessionID, dtos[1].FileID)
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, dl.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, "bravo!", string(body))
	assert.Equal(t, "b.txt", dl.Filename)

	dl, err = g.Download(ctx, "", "u1", dtos[2].UploadSessionID, dtos[2].FileID)
	require.NoError(t, err)
	dl.Body.Close()
	assert.Equal(t, "c.txt", dl.Filename)

	_, err = g.Download(ctx, "", "u1", dtos[2].UploadSessionID, keys.NewObjectID())
	assert.ErrorIs(t, err, failover.ErrObjectNotFound)
}

func TestUploadFailsOverToSecondary(t *testing.T) {
	ctx := context.Background()
	reg, stores := newStores(t, "eu", "us")
	stores["eu"].down = true

	dtos, err := newGateway(reg).Upload(ctx, "u1", []File{textFile("a.txt", "alpha")})
	require.NoError(t, err)
	require.Len(t, dtos, 1)
	assert.Equal(t, "us", dtos[0].Location)
	assert.Equal(t, int32(1), stores["eu"].puts.Load())
}

func TestUploadPoisonFileDoesNotAffectSiblings(t *testing.T) {
	ctx := context.Background()
	reg, stores := newStores(t, "eu", "us")

	poison := textFile("bad.bin", "xxx")
	poison.ContentType = poisonType
	unreadable := textFile("gone.txt", "")
	unreadable.Open = func() (io.ReadCloser, error) { return nil, errors.New("temp file vanished") }

	dtos, err := newGateway(reg).Upload(ctx, "u1", []File{
		textFile("a.txt", "alpha"),
		poison,
		unreadable,
		textFile("z.txt", "zulu"),
	})
	require.NoError(t, err)
	require.Len(t, dtos, 2)
	assert.Equal(t, "a.txt", dtos[0].Filename)
	assert.Equal(t, "z.txt", dtos[1].Filename)
	assert.Equal(t, int32(3), stores["eu"].puts.Load())
	assert.Equal(t, int32(1), stores["us"].puts.Load(), "only the poisoned file reaches the secondary")
}

func TestUploadToPath(t *testing.T) {
	ctx := context.Background()
	reg, _ := newStores(t, "eu")
	g := newGateway(reg)

	dtos, err := g.UploadToPath(ctx, "svc", "reports/q1.csv", []File{
		textFile("first.csv", "1"),
		textFile("second.csv", "22"),
	})
	require.NoError(t, err)
	require.Len(t, dtos, 2)
	assert.Equal(t, "reports/q1.csv", dtos[1].Path)
	assert.Empty(t, dtos[1].FileID)

	b, _ := reg.Lookup("eu")
	_, rc, err := b.Store.Get(ctx, "eu", "reports/q1.csv")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "22", string(body), "the last file wins")

	_, err = g.UploadToPath(ctx, "svc", "../etc/passwd", []File{textFile("x", "x")})
	assert.ErrorIs(t, err, keys.ErrInvalidKey)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	reg, stores := newStores(t, "eu", "us")
	g := newGateway(reg)

	_, err := g.Upload(ctx, "u1", []File{textFile("a.txt", "alpha")})
	require.NoError(t, err)
	stores["eu"].down = true
	_, err = g.Upload(ctx, "u1", []File{textFile("b.txt", "bravo")})
	require.NoError(t, err)
	_, err = g.Upload(ctx, "u2", []File{textFile("other.txt", "nope")})
	require.NoError(t, err)

	dtos, err := g.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, dtos, 2)

	byName := map[string]string{}
	for _, d := range dtos {
		byName[d.Filename] = d.Location
		assert.Equal(t, "u1", d.UserID)
		assert.Equal(t, int64(5), d.SizeInBytes)
		assert.NotEmpty(t, d.CreatedAt)
	}
	assert.Equal(t, map[string]string{"a.txt": "eu", "b.txt": "us"}, byName)

	_, err = g.List(ctx, "")
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestUploadRequiresOwner(t *testing.T) {
	reg, _ := newStores(t, "eu")
	_, err := newGateway(reg).Upload(context.Background(), "", []File{textFile("a", "a")})
	assert.ErrorIs(t, err, ErrNoOwner)
}
