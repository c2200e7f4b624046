// Package config holds the flat key space shared by the configuration
// stores. Keys use dot notation ("poll.interval"); values keep whatever
// type the decoder or caller produced and are coerced on read.
package config

import (
	"maps"
	"sync"
	"time"
)

// Values is a concurrency-safe flat configuration map.
type Values struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewValues returns Values seeded with a copy of data.
func NewValues(data map[string]any) *Values {
	v := &Values{data: make(map[string]any, len(data))}
	maps.Copy(v.data, data)
	return v
}

// Get returns the raw value and whether the key is set.
func (v *Values) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

// GetString returns "" unless the key holds a string.
func (v *Values) GetString(key string) string {
	s, _ := v.lookup(key).(string)
	return s
}

// GetInt accepts the integer forms produced by TOML (int64) and JSON
// (float64) decoders as well as plain ints.
func (v *Values) GetInt(key string) int {
	switch n := v.lookup(key).(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetBool returns false unless the key holds a bool.
func (v *Values) GetBool(key string) bool {
	b, _ := v.lookup(key).(bool)
	return b
}

// GetDuration reads a time.Duration, a duration string ("5m") or a
// number of whole seconds. Unparseable values read as zero.
func (v *Values) GetDuration(key string) time.Duration {
	switch d := v.lookup(key).(type) {
	case time.Duration:
		return d
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0
		}
		return parsed
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	}
	return 0
}

// Put stores a value.
func (v *Values) Put(key string, value any) {
	v.mu.Lock()
	v.data[key] = value
	v.mu.Unlock()
}

// Replace swaps the whole map for a copy of data.
func (v *Values) Replace(data map[string]any) {
	fresh := make(map[string]any, len(data))
	maps.Copy(fresh, data)
	v.mu.Lock()
	v.data = fresh
	v.mu.Unlock()
}

// Snapshot returns a copy of every key and value.
func (v *Values) Snapshot() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.data)
}

func (v *Values) lookup(key string) any {
	val, _ := v.Get(key)
	return val
}
