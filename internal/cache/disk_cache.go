package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	indexFile = ".partitions"
	tmpPrefix = ".tmp-"
)

// DiskCache implements GenericCache for a partition directory
type DiskCache struct {
	cacheDir string
}

// NewGenericDisk creates a new disk cache rooted at cacheDir
func NewGenericDisk(cacheDir string) *DiskCache {
	return &DiskCache{
		cacheDir: cacheDir,
	}
}

func (d *DiskCache) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid cache key: %q", key)
	}
	return filepath.Join(d.cacheDir, cleaned), nil
}

// Get retrieves a cached value if it exists
func (d *DiskCache) Get(key string) ([]byte, error) {
	cachePath, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cachePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file %s: %w", cachePath, err)
	}

	return data, nil
}

// Set stores a value in the cache. The file is replaced atomically.
func (d *DiskCache) Set(key string, data []byte) error {
	cachePath, err := d.path(key)
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	logrus.Debugf("Cached entry: %s", cachePath)
	return nil
}

// Delete removes a cached value
func (d *DiskCache) Delete(key string) (bool, error) {
	cachePath, err := d.path(key)
	if err != nil {
		return false, err
	}

	err = os.Remove(cachePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Keys lists every stored key, using forward slashes
func (d *DiskCache) Keys() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.cacheDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(d.cacheDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory %s: %w", d.cacheDir, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Init ensures the cache directory exists
func (d *DiskCache) Init() error {
	return os.MkdirAll(d.cacheDir, 0755)
}

// DiskStorage keeps one DiskCache directory per partition.
// Creation order is recorded in an index file next to the partitions.
type DiskStorage struct {
	mu     sync.Mutex
	folder string
}

// NewDiskStorage creates a disk storage rooted at folder
func NewDiskStorage(folder string) *DiskStorage {
	return &DiskStorage{folder: folder}
}

func (s *DiskStorage) partition(name string) *DiskCache {
	return NewGenericDisk(filepath.Join(s.folder, name))
}

// Open returns the partition, creating its directory when missing
func (s *DiskStorage) Open(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partition(name)
	if _, err := os.Stat(p.cacheDir); err == nil {
		return p, nil
	}
	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("failed to create partition %s: %w", name, err)
	}

	names, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	if err := s.writeIndex(append(names, name)); err != nil {
		return nil, err
	}

	logrus.Debugf("Created cache partition %s", name)
	return p, nil
}

// Get returns the partition if its directory exists
func (s *DiskStorage) Get(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	p := s.partition(name)
	info, err := os.Stat(p.cacheDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}
	return p, nil
}

// Delete removes the partition directory
func (s *DiskStorage) Delete(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partition(name)
	_, statErr := os.Stat(p.cacheDir)
	existed := statErr == nil

	if err := os.RemoveAll(p.cacheDir); err != nil {
		return false, fmt.Errorf("failed to remove partition %s: %w", name, err)
	}

	names, err := s.readIndex()
	if err != nil {
		return existed, err
	}
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	return existed, s.writeIndex(kept)
}

// Names lists the partitions in creation order.
// Directories missing from the index are listed last, by name.
func (s *DiskStorage) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.folder)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache folder %s: %w", s.folder, err)
	}

	present := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() && validateName(entry.Name()) == nil {
			present[entry.Name()] = true
		}
	}

	indexed, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, n := range indexed {
		if present[n] {
			names = append(names, n)
			delete(present, n)
		}
	}
	var rest []string
	for n := range present {
		rest = append(rest, n)
	}
	sort.Strings(rest)
	return append(names, rest...), nil
}

// Close is a no-op for disk storage
func (s *DiskStorage) Close() error {
	return nil
}

func (s *DiskStorage) readIndex() ([]string, error) {
	f, err := os.Open(filepath.Join(s.folder, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open partition index: %w", err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n := strings.TrimSpace(scanner.Text())
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names, scanner.Err()
}

func (s *DiskStorage) writeIndex(names []string) error {
	if err := os.MkdirAll(s.folder, 0755); err != nil {
		return err
	}
	data := strings.Join(names, "\n")
	if data != "" {
		data += "\n"
	}
	if err := os.WriteFile(filepath.Join(s.folder, indexFile), []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write partition index: %w", err)
	}
	return nil
}
