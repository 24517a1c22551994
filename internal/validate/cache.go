package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/qfleet/internal/ir"
)

// Cache memoises validation results. ERROR results are never stored.
type Cache interface {
	Get(key string) (Result, bool, error)
	Put(key string, r Result) error
}

const cacheDomain = "qfleet/validate/v1"

// CacheKey identifies a measurement: the database it ran on (namespace),
// the canonical original and candidate text, the method and the run count.
// Queries that do not parse are keyed by their whitespace-normalised text.
func CacheKey(namespace string, d ir.Dialect, original, candidate string, m Method, runs int) string {
	h := sha256.New()
	h.Write([]byte(cacheDomain))
	for _, part := range []string{
		namespace,
		string(d),
		canonicalSQL(d, original),
		canonicalSQL(d, candidate),
		string(m),
		strconv.Itoa(runs),
	} {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalSQL(d ir.Dialect, sql string) string {
	stmts, err := ir.Parse(sql, d)
	if err != nil {
		return ir.NormalizeWhitespace(sql)
	}
	return ir.CanonicalAll(stmts)
}

// BadgerCache stores results in a Badger database.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (or creates) a cache directory. An empty dir
// opens an in-memory cache.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Get returns the stored result for key.
func (c *BadgerCache) Get(key string) (Result, bool, error) {
	var r Result
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("read cached result: %w", err)
	}
	return r, true, nil
}

// Put stores r under key.
func (c *BadgerCache) Put(key string, r Result) error {
	if r.Status == StatusError {
		return nil
	}
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// Close closes the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
