package cache

import (
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements GenericCache on top of go-cache.
// Entries never expire; the janitor is disabled.
type MemoryCache struct {
	items *gocache.Cache
}

// NewGenericMemory creates an empty in-memory partition
func NewGenericMemory() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns a copy of the stored value
func (m *MemoryCache) Get(key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, nil
	}
	data := v.([]byte)
	return append([]byte(nil), data...), nil
}

// Set stores a copy of value
func (m *MemoryCache) Set(key string, value []byte) error {
	m.items.Set(key, append([]byte(nil), value...), gocache.NoExpiration)
	return nil
}

// Delete removes a value
func (m *MemoryCache) Delete(key string) (bool, error) {
	_, ok := m.items.Get(key)
	m.items.Delete(key)
	return ok, nil
}

// Keys lists the stored keys in lexical order
func (m *MemoryCache) Keys() ([]string, error) {
	items := m.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Init is a no-op for memory partitions
func (m *MemoryCache) Init() error {
	return nil
}

// MemoryStorage keeps partitions in process memory. Used for tests and
// ephemeral deployments.
type MemoryStorage struct {
	mu         sync.Mutex
	order      []string
	partitions map[string]*MemoryCache
}

// NewMemoryStorage creates an empty memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{partitions: make(map[string]*MemoryCache)}
}

func (s *MemoryStorage) Open(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[name]; ok {
		return p, nil
	}
	p := NewGenericMemory()
	s.partitions[name] = p
	s.order = append(s.order, name)
	return p, nil
}

func (s *MemoryStorage) Get(name string) (GenericCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[name]; ok {
		return p, nil
	}
	return nil, nil
}

func (s *MemoryStorage) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[name]
	if !ok {
		return false, nil
	}
	p.items.Flush()
	delete(s.partitions, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStorage) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
