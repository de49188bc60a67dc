package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryStore is an in-process ObjectStore used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func memKey(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemoryStore) Backend() string { return "memory" }

// Put stores data directly.
func (m *MemoryStore) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = append([]byte(nil), data...)
}

// Keys lists stored keys in bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := bucket + "/"
	var keys []string
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) DownloadFile(ctx context.Context, bucket, key, localPath string) error {
	data, err := m.ReadObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o600)
}

func (m *MemoryStore) UploadFile(_ context.Context, bucket, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	m.Put(bucket, key, data)
	return nil
}
