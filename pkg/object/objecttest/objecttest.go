// Package objecttest holds the behaviour every object.ObjectStorage backend must show.
package objecttest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"filegate/pkg/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Implements runs the shared backend contract against obj inside container.
// The storage must already be initialized; it is closed when the test ends.
func Implements(t *testing.T, ctx context.Context, obj object.ObjectStorage, container string) {
	t.Helper()
	t.Cleanup(func() { _ = obj.Close(ctx) })

	require.NoError(t, obj.EnsureContainer(ctx, container))
	require.NoError(t, obj.EnsureContainer(ctx, container), "EnsureContainer must be idempotent")

	prefix := fmt.Sprintf("filegate-test-%d", time.Now().UnixNano())
	key := prefix + "/session_object.txt"
	content := []byte("Hello, filegate! This is a test payload.")

	putObj, err := obj.Put(ctx, container, key, bytes.NewReader(content), int64(len(content)), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, key, putObj.Key)
	assert.Equal(t, int64(len(content)), putObj.Size)

	meta := map[string]string{"filename": "report%20final.txt", "sizeinbytes": "40", "location": "test"}
	require.NoError(t, obj.SetMeta(ctx, container, key, meta))

	statObj, err := obj.Stat(ctx, container, key)
	require.NoError(t, err)
	assert.Equal(t, key, statObj.Key)
	assert.Equal(t, int64(len(content)), statObj.Size)
	for k, v := range meta {
		assert.Equal(t, v, statObj.CustomMeta[k], "meta %s", k)
	}

	gotObj, rc, err := obj.Get(ctx, container, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, int64(len(content)), gotObj.Size)
	assert.Equal(t, "report%20final.txt", gotObj.CustomMeta["filename"])

	// Put replaces the body of an existing key.
	replacement := []byte("second version")
	_, err = obj.Put(ctx, container, key, bytes.NewReader(replacement), -1, "")
	require.NoError(t, err)
	_, rc, err = obj.Get(ctx, container, key)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, replacement, data)

	other := prefix + "/session_other.bin"
	_, err = obj.Put(ctx, container, other, bytes.NewReader([]byte{1, 2, 3}), 3, "")
	require.NoError(t, err)

	listed, err := obj.List(ctx, container, prefix+"/")
	require.NoError(t, err)
	keys := make([]string, 0, len(listed))
	for _, o := range listed {
		keys = append(keys, o.Key)
	}
	assert.ElementsMatch(t, []string{key, other}, keys)

	require.NoError(t, obj.Delete(ctx, container, key))
	require.NoError(t, obj.Delete(ctx, container, other))

	_, err = obj.Stat(ctx, container, key)
	assert.ErrorIs(t, err, object.ErrNotFound)
	_, _, err = obj.Get(ctx, container, key)
	assert.ErrorIs(t, err, object.ErrNotFound)
	assert.ErrorIs(t, obj.SetMeta(ctx, container, key, meta), object.ErrNotFound)

	_, err = obj.Stat(ctx, container+"-missing", key)
	assert.ErrorIs(t, err, object.ErrNotFound)
}
