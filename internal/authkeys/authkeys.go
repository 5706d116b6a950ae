// Package authkeys implements the per-agent API key store the HTTP adapter
// checks incoming requests against. Keys are persisted to a JSON file using
// the same load/marshal-indent/write idiom the teacher's connections
// manager used for its connections.json registry, generalized from
// per-connection settings to per-agent keys.
package authkeys

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Store maps agent id -> current API key, backed by an optional JSON file.
type Store struct {
	mu   sync.RWMutex
	path string
	keys map[string]string
}

// New creates an empty, in-memory-only Store (no keys enforced until
// populated, e.g. in development or test setups).
func New() *Store {
	return &Store{keys: map[string]string{}}
}

// Load reads an agent->key JSON map from path. A missing file is not an
// error: it means no keys are configured yet (development mode).
func Load(path string) (*Store, error) {
	s := &Store{path: path, keys: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("authkeys: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.keys); err != nil {
		return nil, fmt.Errorf("authkeys: parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return fmt.Errorf("authkeys: marshaling: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("authkeys: writing %s: %w", s.path, err)
	}
	return nil
}

// Configured reports whether any key has been set at all. When false, the
// adapter runs in development mode and skips enforcement, mirroring the
// teacher's cfg.Security.SecurityMode == "development" escape hatch.
func (s *Store) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) > 0
}

// Check reports whether key is the current key for agent, using a
// constant-time comparison so key checks don't leak timing information.
func (s *Store) Check(agent, key string) bool {
	s.mu.RLock()
	want, ok := s.keys[agent]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
}

// Rotate generates a new random key for agent, persists it, and returns it.
// This is the /v1/admin/rotate-key route's implementation.
func (s *Store) Rotate(agent string) (string, error) {
	key, err := randomKey()
	if err != nil {
		return "", fmt.Errorf("authkeys: generating key: %w", err)
	}
	s.mu.Lock()
	s.keys[agent] = key
	err = s.save()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return key, nil
}

func randomKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
