// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aleutianai/shopstream/datatypes"
)

// =============================================================================
// Key Layout
// =============================================================================
//
// Badger is a flat key space; the store carves it with prefixes:
//
//	product:<productID>           -> JSON datatypes.Product
//	cart:<sessionID>:<productID>  -> JSON datatypes.CartLine
//
// Session IDs are UUIDs and product IDs never contain ':', so the layout
// is unambiguous and a cart scan is a single prefix iteration.

const (
	productPrefix = "product:"
	cartPrefix    = "cart:"
)

func productKey(id string) []byte {
	return []byte(productPrefix + id)
}

func cartKey(sessionID, productID string) []byte {
	return []byte(cartPrefix + sessionID + ":" + productID)
}

func cartScanPrefix(sessionID string) []byte {
	return []byte(cartPrefix + sessionID + ":")
}

// =============================================================================
// Configuration
// =============================================================================

// BadgerConfig holds configuration for the embedded Badger store.
type BadgerConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC rewrites
	// a value log file.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults: synchronous writes,
// GC every 5 minutes at a 0.5 discard ratio.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a test configuration: no disk I/O, no GC.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Badger is the persistent CatalogStore backed by an embedded BadgerDB.
// Cart mutations run inside Update transactions, so conflicting writes to
// the same line are serialized by the engine.
type Badger struct {
	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
}

var _ CatalogStore = (*Badger)(nil)

// OpenBadger opens (or creates) the store.
//
// # Description
//
// Opens a BadgerDB at the configured path, or in memory when InMemory is
// set, and starts the value log GC loop if GCInterval is positive.
//
// # Outputs
//
//   - *Badger: the opened store. Caller must Close.
//   - error: non-nil when the path is missing or the engine fails to open.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
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
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Badger{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return s, nil
}

// Close stops the GC loop and closes the database.
func (s *Badger) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

func (s *Badger) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was collectible, not a failure.
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// =============================================================================
// Products
// =============================================================================

func (s *Badger) GetProduct(ctx context.Context, id string) (datatypes.Product, error) {
	var p datatypes.Product
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, productKey(id), &p, ErrProductNotFound)
	})
	return p, err
}

func (s *Badger) ListProducts(ctx context.Context) ([]datatypes.Product, error) {
	var out []datatypes.Product
	err := s.view(ctx, func(txn *badger.Txn) error {
		// Prefix iteration in Badger is key-ordered, which gives the
		// deterministic ID order the contract requires.
		return scanJSON(txn, []byte(productPrefix), func(p datatypes.Product) {
			out = append(out, p)
		})
	})
	return out, err
}

func (s *Badger) PutProduct(ctx context.Context, p datatypes.Product) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, productKey(p.ID), p)
	})
}

// =============================================================================
// Cart Lines
// =============================================================================

func (s *Badger) GetCartLine(ctx context.Context, sessionID, productID string) (datatypes.CartLine, error) {
	var line datatypes.CartLine
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, cartKey(sessionID, productID), &line, ErrCartLineNotFound)
	})
	return line, err
}

func (s *Badger) PutCartLine(ctx context.Context, sessionID string, line datatypes.CartLine) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, cartKey(sessionID, line.ProductID), line)
	})
}

func (s *Badger) DeleteCartLine(ctx context.Context, sessionID, productID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		err := txn.Delete(cartKey(sessionID, productID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *Badger) ListCartLines(ctx context.Context, sessionID string) ([]datatypes.CartLine, error) {
	var out []datatypes.CartLine
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, cartScanPrefix(sessionID), func(line datatypes.CartLine) {
			out = append(out, line)
		})
	})
	if err != nil {
		return nil, err
	}
	sortCartLines(out)
	return out, nil
}

func (s *Badger) ClearCart(ctx context.Context, sessionID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: cartScanPrefix(sessionID)})
		defer it.Close()
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Transaction Helpers
// =============================================================================

func (s *Badger) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func getJSON[T any](txn *badger.Txn, key []byte, dst *T, notFound error) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON[T any](txn *badger.Txn, key []byte, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func scanJSON[T any](txn *badger.Txn, prefix []byte, emit func(T)) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return err
		}
		emit(v)
	}
	return nil
}
