// ABOUTME: Storage interface and in-memory implementation for page-persistent state
// ABOUTME: Mirrors localStorage semantics: string keys, string values, missing is not an error

package storage

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// Storage is a string key/value store. Get reports a missing key with ok=false.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// TokenKey returns the session token key for a workspace.
func TokenKey(workspaceID string) string {
	return "glance_token_" + workspaceID
}

// Lookup returns the value for key, treating errors as absence.
// Readers of best-effort state use it so a broken store degrades to "unset".
func Lookup(s Storage, key string) string {
	if s == nil {
		return ""
	}
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return ""
	}
	return v
}

// Memory is a thread-safe in-memory Storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get implements Storage.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Storage.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Delete implements Storage.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
