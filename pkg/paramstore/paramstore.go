// Package paramstore reads and writes small durable string parameters such
// as the provisioning flag.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("parameter not found")
	// ErrAlreadyExists is returned by Put without overwrite when the key exists.
	ErrAlreadyExists = errors.New("parameter already exists")
)

// Store is a key/value parameter store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, overwrite bool) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) Put(ctx context.Context, key, value string, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok && !overwrite {
		return fmt.Errorf("%s: %w", key, ErrAlreadyExists)
	}
	m.values[key] = value
	return nil
}
