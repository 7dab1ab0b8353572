// Package kvstore implements a key-value store.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akrylysov/pogreb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
)

// ErrNoSuchKey is returned by the typed getters when the key is absent.
var ErrNoSuchKey = errors.New("kvstore: no such key")

// A key in the KVStore.
type CacheKey []byte

// GenerateCacheKey derives a key from a namespace and a list of
// RLP-encodable parts.
func GenerateCacheKey(namespace string, parts ...interface{}) CacheKey {
	enc, err := rlp.EncodeToBytes([]interface{}{namespace, parts})
	if err != nil {
		// Only reachable with unencodable parts, which is a programming error.
		panic(fmt.Sprintf("kvstore: unencodable cache key parts: %v", err))
	}
	return CacheKey(enc)
}

// A key-value store. Additional functions that give a typed interface
// to the store are provided below, taking KVStore as the first argument
// so they can use generics.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Close() error
}

type pogrebKVStore struct {
	db *pogreb.DB

	path    string
	logger  *log.Logger
	metrics *metrics.StorageMetrics // if nil, no metrics are emitted
}

var _ KVStore = (*pogrebKVStore)(nil)

// Get implements KVStore.
func (s *pogrebKVStore) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

// Has implements KVStore.
func (s *pogrebKVStore) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

// Put implements KVStore.
func (s *pogrebKVStore) Put(key []byte, value []byte) error {
	return s.db.Put(key, value)
}

// Delete implements KVStore.
func (s *pogrebKVStore) Delete(key []byte) error {
	return s.db.Delete(key)
}

// Close implements KVStore.
func (s *pogrebKVStore) Close() error {
	s.logger.Info("closing KVStore", "path", s.path)
	return s.db.Close()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Deletes all files that match the glob pattern.
func deleteFiles(pattern string) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("unable to glob for files %s to delete: %w", pattern, err)
	}
	var lastErr error
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			lastErr = fmt.Errorf("unable to delete file %s: %w", f, err)
		}
	}
	return lastErr
}

// Pogreb backs up its indices into <oldname>.bac on every unclean
// shutdown, so a crash-looping devnet grows ".bac.bac.bac..." names
// until the filesystem refuses them.
func (s *pogrebKVStore) cleanupBackups() {
	if pathExists(filepath.Join(s.path, "lock")) {
		s.logger.Info("pogreb lock file found; store will be reindexed", "path", s.path)
	}
	if err := deleteFiles(filepath.Join(s.path, "*.bac.bac")); err != nil {
		s.logger.Warn("failed to delete excessively backed-up pogreb index files", "err", err)
	}
}

// OpenKVStore opens the store at `path`, creating it if needed.
// `metrics` can be nil, in which case no metrics are emitted.
func OpenKVStore(logger *log.Logger, path string, metrics *metrics.StorageMetrics) (KVStore, error) {
	store := &pogrebKVStore{
		logger:  logger,
		path:    path,
		metrics: metrics,
	}
	store.cleanupBackups()

	logger.Info("opening KVStore", "path", path)
	db, err := pogreb.Open(path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	store.db = db
	logger.Info(fmt.Sprintf("KVStore has %d entries", db.Count()))
	return store, nil
}

// Pretty returns a human-readable version of the cache key, for logs only.
func (cacheKey CacheKey) Pretty() string {
	var parsed []interface{}
	var pretty string
	if err := rlp.DecodeBytes(cacheKey, &parsed); err == nil {
		pretty = fmt.Sprintf("%x", parsed)
	} else {
		pretty = fmt.Sprintf("%x", []byte(cacheKey))
	}
	if len(pretty) > 100 {
		pretty = pretty[:95] + "[...]"
	}
	return pretty
}

func increaseReadCounter(cache KVStore, status metrics.CacheReadStatus) {
	if metricsCache, ok := cache.(*pogrebKVStore); ok && metricsCache.metrics != nil {
		metricsCache.metrics.LocalCacheReads(status).Inc()
	}
}

// GetValue fetches the value of `key` and RLP-decodes it into `value`.
// Returns ErrNoSuchKey if the key is absent.
func GetValue[Value any](cache KVStore, key CacheKey, value *Value) error {
	isCached, err := cache.Has(key)
	if err != nil {
		increaseReadCounter(cache, metrics.CacheReadStatusError)
		return err
	}
	if !isCached {
		increaseReadCounter(cache, metrics.CacheReadStatusMiss)
		return ErrNoSuchKey
	}
	raw, err := cache.Get(key)
	if err != nil {
		increaseReadCounter(cache, metrics.CacheReadStatusError)
		return fmt.Errorf("failed to fetch key %s: %w", key.Pretty(), err)
	}
	if err = rlp.DecodeBytes(raw, value); err != nil {
		increaseReadCounter(cache, metrics.CacheReadStatusBadValue)
		return fmt.Errorf("failed to decode the value for key %s into %T: %w", key.Pretty(), value, err)
	}
	increaseReadCounter(cache, metrics.CacheReadStatusHit)
	return nil
}

// PutValue RLP-encodes `value` and stores it under `key`.
func PutValue[Value any](cache KVStore, key CacheKey, value *Value) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("failed to encode the value for key %s: %w", key.Pretty(), err)
	}
	return cache.Put(key, raw)
}
