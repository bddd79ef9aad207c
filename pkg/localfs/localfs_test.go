package localfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"filegate/pkg/object"
	"filegate/pkg/object/objecttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "objects")
	st := &Storage{}
	require.NoError(t, st.Init(context.Background(), Config{Root: root}))
	return st, root
}

func TestLocalFSObjectStorage(t *testing.T) {
	st, _ := newTestStorage(t)
	objecttest.Implements(t, context.Background(), st, "eu")
}

func TestLocalFSRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStorage(t)
	require.NoError(t, st.EnsureContainer(ctx, "eu"))

	for _, key := range []string{"../escape", "a/../../escape", "", "a/.upload-1"} {
		_, err := st.Put(ctx, "eu", key, bytes.NewReader([]byte("x")), 1, "")
		assert.Error(t, err, key)
		assert.False(t, errors.Is(err, object.ErrNotFound), key)
	}
	for _, container := range []string{"", "..", ".filegate-meta", "a/b"} {
		assert.Error(t, st.EnsureContainer(ctx, container), container)
	}
}

func TestLocalFSPutRequiresContainer(t *testing.T) {
	st, _ := newTestStorage(t)
	_, err := st.Put(context.Background(), "missing", "k", bytes.NewReader(nil), 0, "")
	assert.ErrorIs(t, err, object.ErrNotFound)
}

func TestLocalFSMissingSidecar(t *testing.T) {
	ctx := context.Background()
	st, root := newTestStorage(t)
	require.NoError(t, st.EnsureContainer(ctx, "eu"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "eu", "owner"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "eu", "owner", "s_1"), []byte("hello"), 0o644))

	obj, err := st.Stat(ctx, "eu", "owner/s_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	assert.Nil(t, obj.CustomMeta)

	_, rc, err := st.Get(ctx, "eu", "owner/s_1")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestLocalFSPutHonoursCancellation(t *testing.T) {
	st, root := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, st.EnsureContainer(ctx, "eu"))
	cancel()

	_, err := st.Put(ctx, "eu", "k", bytes.NewReader([]byte("data")), 4, "")
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(filepath.Join(root, "eu"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files must be removed")
}
