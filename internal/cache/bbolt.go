package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.etcd.io/bbolt"
)

// bucketName is the bbolt bucket holding cached responses.
const bucketName = "quotes"

// BboltStore persists entries in a bbolt database so the cache survives restarts.
type BboltStore struct {
	db     *bbolt.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*BboltStore)(nil)

// NewBboltStore creates a BboltStore on an open database. The store owns db
// from here on and closes it in Close.
func NewBboltStore(db *bbolt.DB) (*BboltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists([]byte(bucketName))
		return createErr
	})
	if err != nil {
		return nil, err
	}
	return &BboltStore{db: db}, nil
}

// Get returns the entry for key. An entry that no longer decodes is
// reported as a miss.
func (s *BboltStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrCacheClosed
	}

	var entry Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return errors.New("bucket not found")
		}
		data := b.Get([]byte(key))
		if data == nil {
			return ErrCacheMiss
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return ErrCacheMiss
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *BboltStore) Set(_ context.Context, key string, e Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrCacheClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return errors.New("bucket not found")
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BboltStore) Delete(_ context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrCacheClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Clear drops and recreates the bucket in one transaction.
func (s *BboltStore) Clear(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrCacheClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketName)) != nil {
			if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

func (s *BboltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
