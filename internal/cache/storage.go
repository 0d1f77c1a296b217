package cache

import (
	"fmt"

	"github.com/A6-9V/sw-proxy/internal/config"
)

// NewStorage builds the storage backend selected in the configuration
func NewStorage(cfg *config.CacheConfig) (Storage, error) {
	switch cfg.Backend {
	case config.BackendDisk, "":
		return NewDiskStorage(cfg.Folder), nil
	case config.BackendMemory:
		return NewMemoryStorage(), nil
	case config.BackendSQLite:
		if err := NewGenericDisk(cfg.Folder).Init(); err != nil {
			return nil, fmt.Errorf("failed to create cache folder: %w", err)
		}
		return NewSQLiteStorageInFolder(cfg.Folder)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// Stat is the entry count of one partition
type Stat struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Stats counts the entries of every partition, in creation order
func Stats(s Storage) ([]Stat, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}

	stats := make([]Stat, 0, len(names))
	for _, name := range names {
		p, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		keys, err := p.Keys()
		if err != nil {
			return nil, fmt.Errorf("failed to count entries of %s: %w", name, err)
		}
		stats = append(stats, Stat{Name: name, Size: len(keys)})
	}
	return stats, nil
}
