// Package memory provides in-process implementations of driven ports for
// single-node deployments and tests.
package memory

import (
	"sort"
	"sync"

	"github.com/custodia-labs/townhall/internal/adapters/driven/config/values"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps configuration in a map. Nothing is persisted.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{values: make(map[string]any)}
}

// Get retrieves a configuration value by key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.values[key]
	return val, ok
}

// GetString returns the value formatted as a string.
func (s *ConfigStore) GetString(key string) string { return values.String(s.value(key)) }

// GetInt returns the value as an int.
func (s *ConfigStore) GetInt(key string) int { return values.Int(s.value(key)) }

// GetFloat returns the value as a float64.
func (s *ConfigStore) GetFloat(key string) float64 { return values.Float(s.value(key)) }

// GetBool returns the value as a bool.
func (s *ConfigStore) GetBool(key string) bool { return values.Bool(s.value(key)) }

// GetStringSlice returns the value as a list of strings.
func (s *ConfigStore) GetStringSlice(key string) []string { return values.Strings(s.value(key)) }

func (s *ConfigStore) value(key string) any {
	v, _ := s.Get(key)
	return v
}

// Set stores a configuration value.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Keys returns every stored key in sorted order.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
