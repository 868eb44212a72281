package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New(RoleAgent, "planner", "hello")
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, RoleAgent, m.Role)
	assert.Equal(t, "planner", m.From)
	assert.Equal(t, "hello", m.Content)
	assert.False(t, m.CreatedAt.IsZero())

	other := New(RoleAgent, "planner", "hello")
	assert.NotEqual(t, m.ID, other.ID)
}

func TestUser(t *testing.T) {
	m := User("hi")
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, "user", m.From)
}

func TestWithMetadataDoesNotMutate(t *testing.T) {
	orig := New(RoleAgent, "a", "x").WithMetadata("k", 1)
	derived := orig.WithMetadata("k", 2).WithMetadata("extra", true)

	v, _ := orig.Meta("k")
	assert.Equal(t, 1, v)
	_, ok := orig.Meta("extra")
	assert.False(t, ok)

	v, _ = derived.Meta("k")
	assert.Equal(t, 2, v)
	assert.Equal(t, orig.ID, derived.ID, "metadata derivation keeps identity")
}

func TestForward(t *testing.T) {
	orig := New(RoleAgent, "a", "x").WithPayload(map[string]any{"n": 1}, "schema/v1")
	fwd := orig.Forward("b", "c")

	assert.NotEqual(t, orig.ID, fwd.ID)
	assert.Equal(t, "b", fwd.From)
	assert.Equal(t, "c", fwd.To)
	assert.Equal(t, "schema/v1", fwd.Schema)
	from, ok := fwd.Meta("forwarded_from")
	require.True(t, ok)
	assert.Equal(t, orig.ID, from)

	p, ok := fwd.PayloadMap()
	require.True(t, ok)
	assert.Equal(t, 1, p["n"])
}

func TestMetaOnNil(t *testing.T) {
	var m *Message
	_, ok := m.Meta("x")
	assert.False(t, ok)
	_, ok = m.PayloadMap()
	assert.False(t, ok)
}
