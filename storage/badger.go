package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// flagKeyPrefix namespaces flag keys inside the Badger keyspace so the
// store can share a database with other host data.
const flagKeyPrefix = "vrflag:"

// BadgerStore implements FlagStore on top of BadgerDB for hosts that need
// flags to survive process restarts (kiosk and embedded installations).
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerStore wraps an existing Badger database. The caller keeps
// ownership of db; Close on the returned store is a no-op.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) a Badger database at path and returns a
// store that owns it. Close releases the database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// Close releases the underlying database if this store owns it.
func (s *BadgerStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// Get returns the value for key and whether it was present.
func (s *BadgerStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(flagKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get flag %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *BadgerStore) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(flagKeyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set flag %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(flagKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("delete flag %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored flag keys.
func (s *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(flagKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			keys = append(keys, string(k[len(flagKeyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	return keys, nil
}

// DeleteMatching removes every key containing any of the given substrings.
func (s *BadgerStore) DeleteMatching(tokens ...string) (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if !keyMatches(k, tokens) {
			continue
		}
		if err := s.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
