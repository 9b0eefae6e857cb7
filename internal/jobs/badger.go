// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

const badgerJobPrefix = "job:"

// BadgerStore persists jobs in an embedded badger database. It is the
// default backend: durable across restarts without any external service.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(path string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithIndexCacheSize(16 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func badgerJobKey(videoID string) []byte {
	return []byte(badgerJobPrefix + videoID)
}

func (s *BadgerStore) Get(_ context.Context, videoID string) (*Job, error) {
	var job Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerJobKey(videoID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return &job, nil
}

func (s *BadgerStore) Put(_ context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerJobKey(job.VideoID), data)
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

func (s *BadgerStore) List(_ context.Context) ([]*Job, error) {
	var out []*Job
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerJobPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var job Job
				if err := json.Unmarshal(val, &job); err != nil {
					return err
				}
				out = append(out, &job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
