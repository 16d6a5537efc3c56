// Package localstore is the durable key/value cache holding the last known good copy of every
// collection. Reads never fail: missing or unreadable values come back empty.
package localstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog/log"

	apperrors "love-album-backend/internal/errors"
)

// Store wraps a pebble database
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the local store at path
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	log.Info().Str("path", path).Msg("Local store opened")
	return &Store{db: db, path: path}, nil
}

// OpenInMemory opens a store backed by an in-memory filesystem
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory local store: %w", err)
	}
	return &Store{db: db, path: ":memory:"}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close local store: %w", err)
	}
	s.db = nil
	return nil
}

// Get returns the raw value at key. Missing keys and read failures report false.
func (s *Store) Get(key string) ([]byte, bool) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			log.Error().Err(err).Str("key", key).Msg("Failed to read local store")
		}
		return nil, false
	}
	defer closer.Close()
	return append([]byte(nil), v...), true
}

// Put replaces the value at key
func (s *Store) Put(key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write local key %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *Store) Delete(key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete local key %s: %w", key, err)
	}
	return nil
}

// Keys lists every key starting with prefix in byte order
func (s *Store) Keys(prefix string) []string {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = upperBound([]byte(prefix))
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("Failed to iterate local store")
		return nil
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
			break
		}
		keys = append(keys, string(iter.Key()))
	}
	return keys
}

// upperBound returns the smallest key greater than every key with the given prefix
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// ReadValue decodes the JSON value at key into dst. It reports false when the key is
// missing or the stored value cannot be decoded.
func ReadValue(s *Store, key string, dst any) bool {
	data, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().
			Err(apperrors.Wrap(apperrors.ErrLocalCorrupt, "stored value is not valid JSON", err)).
			Str("key", key).
			Msg("Discarding corrupt local value")
		return false
	}
	return true
}

// WriteValue stores v as JSON at key
func WriteValue(s *Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal local value: %w", err)
	}
	return s.Put(key, data)
}

// Read returns the sequence stored at key, or an empty sequence
func Read[T any](s *Store, key string) []T {
	var items []T
	if !ReadValue(s, key, &items) || items == nil {
		return []T{}
	}
	return items
}

// Write replaces the sequence stored at key
func Write[T any](s *Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return WriteValue(s, key, items)
}
