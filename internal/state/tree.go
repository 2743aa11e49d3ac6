package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tree is a key-value tree addressed by slash-free paths.
//
// Values are JSON-compatible: what Set stores, Get returns decoded the way
// encoding/json decodes into an interface{} (objects as map[string]any,
// numbers as float64). Setting a nil value removes the path.
type Tree interface {
	// Get returns the value at path. exists is false when nothing is stored.
	Get(ctx context.Context, path string) (value any, exists bool, err error)

	// Set replaces the value at path.
	Set(ctx context.Context, path string, value any) error
}

// MultiPathWriter is implemented by trees that can replace several paths in
// one atomic operation.
type MultiPathWriter interface {
	Update(ctx context.Context, values map[string]any) error
}

// HealthChecker is implemented by trees that can verify their backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MemoryTree is an in-process Tree. Values are stored JSON-encoded so reads
// return the same shapes a remote backend would.
//
// Thread Safety: all methods are safe for concurrent use.
type MemoryTree struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryTree returns an empty MemoryTree.
func NewMemoryTree() *MemoryTree {
	return &MemoryTree{values: make(map[string][]byte)}
}

// Get implements Tree.
func (t *MemoryTree) Get(ctx context.Context, path string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	t.mu.RLock()
	data, ok := t.values[path]
	t.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, true, nil
}

// Set implements Tree.
func (t *MemoryTree) Set(ctx context.Context, path string, value any) error {
	return t.Update(ctx, map[string]any{path: value})
}

// Update implements MultiPathWriter. Either every path is written or none is.
func (t *MemoryTree) Update(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := make(map[string][]byte, len(values))
	for path, v := range values {
		if v == nil {
			encoded[path] = nil
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		encoded[path] = data
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for path, data := range encoded {
		if data == nil {
			delete(t.values, path)
			continue
		}
		t.values[path] = data
	}
	return nil
}

// Dump returns the raw JSON stored at every path.
func (t *MemoryTree) Dump() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(t.values))
	for path, data := range t.values {
		out[path] = string(data)
	}
	return out
}
