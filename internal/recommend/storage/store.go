// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package storage implements the durable recommendation store on BadgerDB.
//
// Records survive process restarts but the store is local to one deployment
// unit; no cross-process sharing is assumed. Ordering by last use is a store
// concern: an in-memory recency index is rebuilt from disk at open and
// maintained under the store mutex, while badger supplies durability.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/metrics"
	"github.com/clinicore/pumpmatch/internal/recommend"
)

// recordKeyPrefix namespaces cached records inside the badger keyspace.
const recordKeyPrefix = "rec:"

// ErrNotFound is returned by Get for an unknown record id.
var ErrNotFound = errors.New("storage: record not found")

// Options configures a Store.
type Options struct {
	// Path is the badger directory. Empty selects in-memory mode, which
	// is only suitable for tests.
	Path string

	// ScanLimit bounds how many most-recently-used records FindBestMatch
	// evaluates. Default 50.
	ScanLimit int

	// Logger receives store-level events.
	Logger zerolog.Logger
}

// entryMeta is one recency-index entry.
type entryMeta struct {
	id         string
	lastUsedAt time.Time
}

// Store is a durable, concurrency-safe store of CachedRecords with a
// lastUsedAt-descending recency index. A single coarse lock is deliberate:
// requests are human-paced and correctness beats fine-grained locking here.
type Store struct {
	db        *badger.DB
	logger    zerolog.Logger
	scanLimit int

	mu      sync.RWMutex
	recency []entryMeta // sorted by lastUsedAt descending
}

// Open opens (or creates) the store and rebuilds the recency index.
func Open(opts Options) (*Store, error) {
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = 50
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}

	s := &Store{
		db:        db,
		logger:    opts.Logger,
		scanLimit: opts.ScanLimit,
	}
	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info().Int("entries", len(s.recency)).Str("path", opts.Path).Msg("recommendation store opened")
	metrics.StoreEntries.Set(float64(len(s.recency)))
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebuildIndex scans all records and sorts them by lastUsedAt descending.
func (s *Store) rebuildIndex() error {
	var idx []entryMeta

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec recommend.CachedRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode record %s: %w", it.Item().Key(), err)
			}
			idx = append(idx, entryMeta{id: rec.ID, lastUsedAt: rec.LastUsedAt})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild recency index: %w", err)
	}

	sort.Slice(idx, func(i, j int) bool {
		return idx[i].lastUsedAt.After(idx[j].lastUsedAt)
	})

	s.mu.Lock()
	s.recency = idx
	s.mu.Unlock()
	return nil
}

// Insert stores a new record and places it at the front of the recency
// index. The record's UseCount must be >= 1 and LastUsedAt >= CreatedAt.
func (s *Store) Insert(ctx context.Context, rec *recommend.CachedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.UseCount == 0 {
		rec.UseCount = 1
	}
	if rec.LastUsedAt.Before(rec.CreatedAt) {
		rec.LastUsedAt = rec.CreatedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	s.recency = append([]entryMeta{{id: rec.ID, lastUsedAt: rec.LastUsedAt}}, s.recency...)
	metrics.StoreEntries.Set(float64(len(s.recency)))
	return nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, id string) (*recommend.CachedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec recommend.CachedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindBestMatch scans at most ScanLimit most-recently-used records and
// returns the highest-similarity record whose similarity is >= minSimilarity,
// along with that similarity. Ties break toward the more recently used
// record. Returns (nil, 0, nil) when nothing qualifies: the bounded scan is
// a recall heuristic, not a correctness guarantee.
func (s *Store) FindBestMatch(ctx context.Context, profile recommend.Profile, minSimilarity float64) (*recommend.CachedRecord, float64, error) {
	s.mu.RLock()
	candidates := make([]string, 0, s.scanLimit)
	for i, meta := range s.recency {
		if i >= s.scanLimit {
			break
		}
		candidates = append(candidates, meta.id)
	}
	s.mu.RUnlock()

	var (
		best    *recommend.CachedRecord
		bestSim float64
	)

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // pruned between index snapshot and load
		}
		if err != nil {
			return nil, 0, err
		}

		sim := recommend.Similarity(profile, rec.Profile)
		// Candidates iterate most-recent first, so a strict > keeps
		// the most recently used record on ties.
		if sim >= minSimilarity && sim > bestSim {
			best = rec
			bestSim = sim
		}
	}

	if best == nil {
		return nil, 0, nil
	}
	return best, bestSim, nil
}

// Touch bumps lastUsedAt and increments useCount, moving the record to the
// front of the recency index.
func (s *Store) Touch(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec recommend.CachedRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}

		rec.LastUsedAt = now
		rec.UseCount++

		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(recordKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("touch record %s: %w", id, err)
	}

	for i := range s.recency {
		if s.recency[i].id == id {
			meta := entryMeta{id: id, lastUsedAt: now}
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			s.recency = append([]entryMeta{meta}, s.recency...)
			break
		}
	}
	return nil
}

// Prune retains only the maxEntries most recently used records and deletes
// the remainder. Returns the number of deleted records. Invoked
// opportunistically by the background pruner, not on every write.
func (s *Store) Prune(ctx context.Context, maxEntries int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recency) <= maxEntries {
		return 0, nil
	}

	victims := s.recency[maxEntries:]
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, meta := range victims {
			if err := txn.Delete(recordKey(meta.id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete record %s: %w", meta.id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := len(victims)
	s.recency = s.recency[:maxEntries:maxEntries]
	metrics.StoreEntries.Set(float64(len(s.recency)))

	s.logger.Debug().Int("deleted", deleted).Int("retained", maxEntries).Msg("store pruned")
	return deleted, nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.DropPrefix([]byte(recordKeyPrefix))
	if err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	s.recency = nil
	metrics.StoreEntries.Set(0)
	return nil
}

// Count returns the number of records currently indexed.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recency)
}

func recordKey(id string) []byte {
	return []byte(recordKeyPrefix + id)
}
