package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
)

func TestValues(t *testing.T) {
	v := config.NewValues(map[string]any{
		"name":      "demo",
		"hops":      12,
		"big":       int64(7),
		"ratio":     3.0,
		"fraction":  2.5,
		"timeout":   "1m30s",
		"seconds":   2,
		"float_sec": 0.5,
		"typed":     time.Minute,
		"bad":       "later",
		"verbose":   true,
		"tags":      []any{"a", "b"},
		"mixed":     []any{"a", 1},
		"plain":     []string{"x"},
	})

	assert.Equal(t, "demo", v.String("name", "x"))
	assert.Equal(t, "x", v.String("hops", "x"))

	assert.Equal(t, 12, v.Int("hops", 0))
	assert.Equal(t, 7, v.Int("big", 0))
	assert.Equal(t, 3, v.Int("ratio", 0))
	assert.Equal(t, -1, v.Int("fraction", -1), "fractional floats are rejected")
	assert.Equal(t, -1, v.Int("missing", -1))

	assert.Equal(t, 90*time.Second, v.Duration("timeout", 0))
	assert.Equal(t, 2*time.Second, v.Duration("seconds", 0))
	assert.Equal(t, 500*time.Millisecond, v.Duration("float_sec", 0))
	assert.Equal(t, time.Minute, v.Duration("typed", 0))
	assert.Equal(t, time.Hour, v.Duration("bad", time.Hour))

	assert.True(t, v.Bool("verbose", false))
	assert.True(t, v.Bool("name", true))

	assert.Equal(t, []string{"a", "b"}, v.StringSlice("tags", nil))
	assert.Equal(t, []string{"x"}, v.StringSlice("plain", nil))
	assert.Nil(t, v.StringSlice("mixed", nil))

	assert.True(t, v.Has("name"))
	assert.False(t, v.Has("missing"))
}

func TestValues_NilMap(t *testing.T) {
	v := config.NewValues(nil)
	assert.NotNil(t, v.Raw())
	assert.Equal(t, 5, v.Int("anything", 5))
}
