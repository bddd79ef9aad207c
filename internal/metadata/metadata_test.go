package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSetter struct {
	container, key string
	meta           map[string]string
	err            error
}

func (r *recordingSetter) SetMeta(_ context.Context, container, key string, meta map[string]string) error {
	r.container, r.key, r.meta = container, key, meta
	return r.err
}

func TestTag(t *testing.T) {
	s := &recordingSetter{}
	require.NoError(t, Tag(context.Background(), s, "eu", "u/s_o", Tags{
		Filename: "résumé final.pdf",
		Size:     2048,
		Location: "eu",
	}))

	assert.Equal(t, "eu", s.container)
	assert.Equal(t, "u/s_o", s.key)
	assert.Equal(t, "r%C3%A9sum%C3%A9+final.pdf", s.meta[KeyFilename])
	assert.Equal(t, "2048", s.meta[KeySize])
	assert.Equal(t, "eu", s.meta[KeyLocation])

	got := Decode(s.meta)
	assert.Equal(t, Tags{Filename: "résumé final.pdf", Size: 2048, Location: "eu"}, got)
}

func TestTagFailure(t *testing.T) {
	boom := errors.New("boom")
	err := Tag(context.Background(), &recordingSetter{err: boom}, "eu", "k", Tags{})
	assert.ErrorIs(t, err, boom)
}

func TestFilenameFallback(t *testing.T) {
	assert.Equal(t, DefaultFilename, Filename(nil))
	assert.Equal(t, DefaultFilename, Filename(map[string]string{}))
	assert.Equal(t, DefaultFilename, Filename(map[string]string{KeyFilename: ""}))
	assert.Equal(t, DefaultFilename, Filename(map[string]string{KeyFilename: "+"}))
	assert.Equal(t, "a b.txt", Filename(map[string]string{"Filename": "a%20b.txt"}))
	assert.Equal(t, "100%.txt", Filename(map[string]string{KeyFilename: "100%.txt"}))
}

func TestSize(t *testing.T) {
	n, ok := Size(map[string]string{"SizeInBytes": "12"})
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	for _, v := range []string{"", "-1", "abc"} {
		_, ok := Size(map[string]string{KeySize: v})
		assert.False(t, ok, v)
	}
}
