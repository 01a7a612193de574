package db

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// InMemDB is an in-memory implementation of the DB interface.
// Suitable for testing and development.
type InMemDB struct {
	mu     sync.RWMutex
	runs   map[string]*RunRecord
	tokens map[string]*TokenRecord
}

// NewInMemDB creates a new in-memory database.
func NewInMemDB() *InMemDB {
	return &InMemDB{
		runs:   make(map[string]*RunRecord),
		tokens: make(map[string]*TokenRecord),
	}
}

// CreateRun stores a new run.
func (db *InMemDB) CreateRun(ctx context.Context, record *RunRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.runs[record.RunID]; ok {
		return fmt.Errorf("run %s: %w", record.RunID, ErrAlreadyExists)
	}
	record.Version = 1
	db.runs[record.RunID] = record.Clone()
	return nil
}

// GetRun retrieves a run by ID.
func (db *InMemDB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	run, ok := db.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run.Clone(), nil
}

// UpdateRun replaces a run if its version still matches.
func (db *InMemDB) UpdateRun(ctx context.Context, record *RunRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored, ok := db.runs[record.RunID]
	if !ok {
		return fmt.Errorf("run %s: %w", record.RunID, ErrNotFound)
	}
	if stored.Version != record.Version {
		return fmt.Errorf("run %s at version %d, have %d: %w", record.RunID, stored.Version, record.Version, ErrConcurrentUpdate)
	}
	record.Version++
	db.runs[record.RunID] = record.Clone()
	return nil
}

// ListRuns returns runs matching any of statuses.
func (db *InMemDB) ListRuns(ctx context.Context, statuses ...RunStatus) ([]*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	runs := make([]*RunRecord, 0, len(db.runs))
	for _, run := range db.runs {
		if len(statuses) == 0 || slices.Contains(statuses, run.Status) {
			runs = append(runs, run.Clone())
		}
	}
	sortRuns(runs)
	return runs, nil
}

// PutToken indexes a token digest.
func (db *InMemDB) PutToken(ctx context.Context, record *TokenRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tokens[record.Digest]; ok {
		return fmt.Errorf("token: %w", ErrAlreadyExists)
	}
	tok := *record
	db.tokens[record.Digest] = &tok
	return nil
}

// GetToken looks up a token digest.
func (db *InMemDB) GetToken(ctx context.Context, digest string) (*TokenRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	tok, ok := db.tokens[digest]
	if !ok {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	c := *tok
	return &c, nil
}

// Close is a no-op for in-memory database.
func (db *InMemDB) Close() error {
	return nil
}
