package storage

import (
	"github.com/dgraph-io/badger/v4"
)

// Store implementation using badger
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Update(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if len(value) == 0 {
			return txn.Delete([]byte(key))
		}
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) Iterate(fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), value); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *BadgerStore) EraseAll() error {
	return s.db.DropAll()
}

func (s *BadgerStore) Flush() error {
	return s.db.Sync()
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
