package objectstore

import (
	"bytes"
	"context"
	"sync"
)

// Memory keeps objects in process memory. Use it for development and tests.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]object
}

type object struct {
	data        []byte
	contentType string
}

// NewMemory creates an empty in-memory store whose URLs are rooted at baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: baseURL,
		objects: make(map[string]object),
	}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = object{data: bytes.Clone(data), contentType: contentType}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

// Get returns a copy of the object bytes and content type.
func (m *Memory) Get(key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return bytes.Clone(o.data), o.contentType, nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}

func (m *Memory) URL(key string) string {
	return publicURL(m.baseURL, key)
}
