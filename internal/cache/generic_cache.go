// Handles named cache partitions and their entries
package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned for partition names that cannot be stored safely
var ErrInvalidName = errors.New("invalid partition name")

// GenericCache is a single cache partition: a byte store keyed by request identity
type GenericCache interface {
	// retrieves the stored value.
	// returns nil, nil when not found
	Get(key string) ([]byte, error)
	// stores a value, replacing any previous value (last write wins)
	Set(key string, value []byte) error
	// removes a value, reporting whether it existed
	Delete(key string) (bool, error)
	// lists the stored keys
	Keys() ([]string, error)
	// initializes the cache (e.g., creates necessary directories)
	Init() error
}

// Storage holds every cache partition by name
type Storage interface {
	// returns the partition, creating it when missing
	Open(name string) (GenericCache, error)
	// returns the partition, or nil, nil when it does not exist
	Get(name string) (GenericCache, error)
	// removes the partition and all of its entries, reporting whether it existed
	Delete(name string) (bool, error)
	// lists partition names in creation order
	Names() ([]string, error)
	Close() error
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
