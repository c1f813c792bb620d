// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
	// ErrConflict means a concurrent transaction touched the same key first.
	ErrConflict = errors.New("concurrent modification")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore provides generic storage operations
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

func (s *BadgerStore) Create(entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.makeKey(entity.GetID())
	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrExists, entity.GetID())
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		return txn.Set(key, data)
	})
}

func (s *BadgerStore) Get(id string, entity Entity) error {
	key := s.makeKey(id)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, entity)
		})
	})

	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// Mutate loads the entity stored under id into entity, hands it to fn and
// writes it back, all in one transaction. fn learns whether the entity
// existed; returning an error aborts without writing. A concurrent commit on
// the same key makes Mutate fail with ErrConflict.
func (s *BadgerStore) Mutate(id string, entity Entity, fn func(exists bool) error) error {
	key := s.makeKey(id)

	return s.update(func(txn *badger.Txn) error {
		exists := true
		item, err := txn.Get(key)
		switch {
		case err == badger.ErrKeyNotFound:
			exists = false
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, entity)
			}); err != nil {
				return fmt.Errorf("decoding entity: %w", err)
			}
		}

		if err := fn(exists); err != nil {
			return err
		}

		data, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("marshaling entity: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) Delete(id string) error {
	key := s.makeKey(id)

	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		} else if err != nil {
			return err
		}

		return txn.Delete(key)
	})
}

// IDs returns the ids of every entity under this store's prefix.
func (s *BadgerStore) IDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, s.stripPrefix(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	return ids, nil
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}
