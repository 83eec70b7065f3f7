// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// Config holds configuration for the badger-backed store.
type Config struct {
	// Dir is the directory for database files. Required unless
	// InMemory is true.
	Dir string

	// InMemory enables in-memory mode with no disk persistence.
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// ReadOnly opens an existing database for inspection. The
	// directory must already exist and no writer may hold it.
	ReadOnly bool

	// Logger receives badger's internal logging. Nil disables it.
	Logger *logging.Logger
}

// DefaultConfig returns production defaults: durable synchronous writes.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts a Logger to badger's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is the durable Store implementation.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db *badger.DB

	mu   sync.Mutex
	seqs map[string]uint64
}

var _ Store = (*BadgerStore)(nil)

// Open creates and opens a badger-backed store.
//
// Description:
//
//	Opens the database at the configured directory, creating it if
//	missing, or in memory when InMemory is set. Sequence numbers for
//	sessions already present on disk continue where they left off.
//
// Inputs:
//
//	cfg - Store configuration
//
// Outputs:
//
//	*BadgerStore - The opened store. Caller must Close it.
//	error - Non-nil if the directory is missing or the open fails.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("audit: dir is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if cfg.ReadOnly {
		opts = badger.DefaultOptions(cfg.Dir).WithReadOnly(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create audit directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	return &BadgerStore{
		db:   db,
		seqs: make(map[string]uint64),
	}, nil
}

// recordKey builds the storage key for a session's sequence number.
// Zero-padding keeps lexicographic key order equal to insertion order.
func recordKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%016d", sessionID, seq))
}

// Append stamps and persists a record.
//
// Description:
//
//	Assigns the next sequence number for the record's session, stamps
//	the event time when unset, and writes the JSON-encoded record in
//	one transaction.
func (s *BadgerStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.SessionID == "" {
		return errors.New("audit: record has no session id")
	}

	seq, err := s.nextSeq(rec.SessionID)
	if err != nil {
		return err
	}
	rec.Seq = seq
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.SessionID, seq), data)
	})
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// nextSeq hands out the next sequence number for a session, recovering
// the high-water mark from disk the first time a session is seen.
func (s *BadgerStore) nextSeq(sessionID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.seqs[sessionID]; ok {
		s.seqs[sessionID] = seq + 1
		return seq + 1, nil
	}

	max, err := s.scanMaxSeq(sessionID)
	if err != nil {
		return 0, fmt.Errorf("recover audit sequence for %s: %w", sessionID, err)
	}
	s.seqs[sessionID] = max + 1
	return max + 1, nil
}

// scanMaxSeq finds the highest persisted sequence number for a session.
func (s *BadgerStore) scanMaxSeq(sessionID string) (uint64, error) {
	prefix := []byte(sessionID + "/")
	var max uint64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past every possible key under the prefix, landing on
		// the highest one.
		seekKey := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seekKey)
		if it.Valid() {
			key := it.Item().Key()
			var seq uint64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &seq); err == nil {
				max = seq
			}
		}
		return nil
	})
	return max, err
}

// List returns a session's records in insertion order.
func (s *BadgerStore) List(ctx context.Context, sessionID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(sessionID + "/")
	var records []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode audit record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}

// Sessions returns the distinct session ids present in the store,
// sorted. Key-only iteration; no record values are read.
func (s *BadgerStore) Sessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			id, _, ok := strings.Cut(key, "/")
			if !ok {
				continue
			}
			seen[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit sessions: %w", err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
