package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValues_Coercion(t *testing.T) {
	v := NewValues(map[string]any{
		"str":      "hello",
		"int":      3,
		"int64":    int64(7),
		"float":    float64(9),
		"bool":     true,
		"native":   90 * time.Second,
		"duration": "5m",
		"seconds":  int64(30),
		"bad":      "soon",
	})

	assert.Equal(t, "hello", v.GetString("str"))
	assert.Equal(t, 3, v.GetInt("int"))
	assert.Equal(t, 7, v.GetInt("int64"))
	assert.Equal(t, 9, v.GetInt("float"))
	assert.True(t, v.GetBool("bool"))
	assert.Equal(t, 90*time.Second, v.GetDuration("native"))
	assert.Equal(t, 5*time.Minute, v.GetDuration("duration"))
	assert.Equal(t, 30*time.Second, v.GetDuration("seconds"))
	assert.Equal(t, 3*time.Second, v.GetDuration("int"))
}

func TestValues_MismatchAndMissingReadZero(t *testing.T) {
	v := NewValues(map[string]any{"bad": "soon", "num": 4})

	assert.Zero(t, v.GetInt("bad"))
	assert.False(t, v.GetBool("bad"))
	assert.Zero(t, v.GetDuration("bad"))
	assert.Empty(t, v.GetString("num"))
	assert.Empty(t, v.GetString("missing"))
	assert.Zero(t, v.GetDuration("missing"))
}

func TestValues_SnapshotAndReplaceCopy(t *testing.T) {
	seed := map[string]any{"a": 1}
	v := NewValues(seed)
	seed["a"] = 2
	assert.Equal(t, 1, v.GetInt("a"))

	snap := v.Snapshot()
	snap["a"] = 5
	assert.Equal(t, 1, v.GetInt("a"))

	v.Put("b", "x")
	v.Replace(map[string]any{"c": true})
	_, ok := v.Get("b")
	assert.False(t, ok)
	assert.True(t, v.GetBool("c"))
}
