package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

type (
	// MemoryStore implements Store in process memory.
	// Used for dry runs (OBJECT_STORE_BACKEND=memory) and tests.
	MemoryStore struct {
		mu      sync.RWMutex
		objects map[string]Object
	}

	// Object is a stored blob with its attributes.
	Object struct {
		Body        []byte
		ContentType string
		Metadata    map[string]string
	}
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Put stores a copy of body.
func (s *MemoryStore) Put(ctx context.Context, key string, body []byte, contentType string, opts ...PutOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o := applyPutOptions(opts)
	data := make([]byte, len(body))
	copy(data, body)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = Object{Body: data, ContentType: contentType, Metadata: o.Metadata}

	return nil
}

// Get returns a copy of the stored body.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	data := make([]byte, len(obj.Body))
	copy(data, obj.Body)

	return data, nil
}

// Object returns the stored object and whether it exists.
func (s *MemoryStore) Object(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]

	return obj, ok
}

// Keys lists stored keys in lexical order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
