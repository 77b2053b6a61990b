package repository

import (
	"context"
	"sync"
)

// MemoryRepo keeps values in process memory. It counts writes so tests can
// assert that an operation did not touch storage.
type MemoryRepo struct {
	mu     sync.RWMutex
	values map[string][]byte
	writes int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{values: make(map[string][]byte)}
}

func (r *MemoryRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (r *MemoryRepo) Put(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if err := validateKey(key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = append([]byte(nil), value...)
	r.writes++
	return nil
}

// Seed stores a value without counting it as a write.
func (r *MemoryRepo) Seed(key string, value []byte) {
	r.mu.Lock()
	r.values[key] = append([]byte(nil), value...)
	r.mu.Unlock()
}

// Writes is the number of Put calls that succeeded.
func (r *MemoryRepo) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

func (r *MemoryRepo) Ping(context.Context) error { return nil }

func (r *MemoryRepo) Close() error { return nil }
