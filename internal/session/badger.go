// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/versepulse/versepulse/internal/models"
)

const sessionKeyPrefix = "session:"

// BadgerStore persists sessions in BadgerDB so tokens survive process
// restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an already opened BadgerDB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func (b *BadgerStore) Put(_ context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(s.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", s.ID, err)
	}
	return nil
}

func (b *BadgerStore) Get(_ context.Context, id string) (*models.Session, error) {
	var s models.Session

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (b *BadgerStore) Touch(_ context.Context, id string, at time.Time) error {
	// Read-modify-write inside one transaction; badger detects write
	// conflicts, so a colliding touch retries instead of losing the
	// increment.
	update := func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", id, err)
		}

		var s models.Session
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		}); err != nil {
			return err
		}

		if at.After(s.LastSeenAt) {
			s.LastSeenAt = at
		}
		s.Interactions++

		data, err := json.Marshal(&s)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", id, err)
		}
		return txn.Set(sessionKey(id), data)
	}

	for {
		err := b.db.Update(update)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to touch session %s: %w", id, err)
		}
		return err
	}
}

func (b *BadgerStore) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) SweepIdle(_ context.Context, cutoff time.Time) (int, error) {
	// Collect idle tokens under a read transaction, then delete in a
	// separate write transaction to keep iteration cheap.
	var idle []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var s models.Session
				if err := json.Unmarshal(val, &s); err != nil {
					return err
				}
				if s.LastSeenAt.Before(cutoff) {
					idle = append(idle, s.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan idle sessions: %w", err)
	}

	removed := 0
	for _, id := range idle {
		if err := b.Delete(context.Background(), id); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
