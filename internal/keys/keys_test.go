package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	assert.Equal(t, "u1/s1_o1", Build("u1", "s1", "o1", ""))
	assert.Equal(t, "reports/2024/q1.pdf", Build("u1", "s1", "o1", "reports/2024/q1.pdf"))
	assert.Equal(t, "eu/u1/s1_o1", BuildNamespaced("eu", "u1", "s1", "o1", ""))
	assert.Equal(t, "reports/q1.pdf", BuildNamespaced("eu", "u1", "s1", "o1", "reports/q1.pdf"))
	assert.Equal(t, "u1/s1_o1", ObjectKey{OwnerID: "u1", SessionID: "s1", ObjectID: "o1"}.Path())
}

func TestNewObjectIDUnique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for range n {
		id := NewObjectID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestValidate(t *testing.T) {
	valid := []ObjectKey{
		{OwnerID: "u1", SessionID: "s1", ObjectID: NewObjectID()},
		{ExplicitPath: "reports/q1.pdf"},
		{OwnerID: "", ExplicitPath: "single"},
	}
	for _, k := range valid {
		assert.NoError(t, k.Validate(), "%+v", k)
	}

	invalid := []ObjectKey{
		{OwnerID: "", SessionID: "s", ObjectID: "o"},
		{OwnerID: "u", SessionID: "", ObjectID: "o"},
		{OwnerID: "u", SessionID: "s", ObjectID: ""},
		{OwnerID: "a/b", SessionID: "s", ObjectID: "o"},
		{OwnerID: "u", SessionID: `s\x`, ObjectID: "o"},
		{OwnerID: "..", SessionID: "s", ObjectID: "o"},
		{OwnerID: "u", SessionID: "s", ObjectID: "a..b"},
		{ExplicitPath: "/abs"},
		{ExplicitPath: "a//b"},
		{ExplicitPath: "a/../b"},
		{ExplicitPath: "a/"},
		{ExplicitPath: `a\b`},
	}
	for _, k := range invalid {
		assert.ErrorIs(t, k.Validate(), ErrInvalidKey, "%+v", k)
	}
}

func TestParse(t *testing.T) {
	id := NewObjectID()
	k, ok := Parse(Build("u1", "s1", id, ""))
	require.True(t, ok)
	assert.Equal(t, ObjectKey{OwnerID: "u1", SessionID: "s1", ObjectID: id}, k)

	k, ok = ParseNamespaced("eu", BuildNamespaced("eu", "u1", "s1", id, ""))
	require.True(t, ok)
	assert.Equal(t, "u1", k.OwnerID)

	for _, p := range []string{"", "u1", "u1/s1", "u1/_o", "u1/s1_", "a/b/c_d", "/s_o"} {
		_, ok := Parse(p)
		assert.False(t, ok, p)
	}
	_, ok = ParseNamespaced("us", "eu/u1/s1_o1")
	assert.False(t, ok)
}
