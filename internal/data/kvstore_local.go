package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLocalCacheSize bounds the in-process store when no size is configured.
const DefaultLocalCacheSize = 10000

type localEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

func (e localEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// localKVStore is an in-process KVStore backed by an LRU.
// A single mutex makes SetNX and Incr atomic within the process.
type localKVStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, localEntry]
	now   func() time.Time
}

// NewLocalKVStore creates an in-process KVStore holding at most size keys.
func NewLocalKVStore(size int) KVStore {
	return newLocalKVStore(size, time.Now)
}

func newLocalKVStore(size int, now func() time.Time) *localKVStore {
	if size <= 0 {
		size = DefaultLocalCacheSize
	}
	// lru.New only fails on a non-positive size
	cache, _ := lru.New[string, localEntry](size)
	return &localKVStore{cache: cache, now: now}
}

// load returns a live entry, evicting it when expired. Caller holds mu.
func (s *localKVStore) load(key string) (localEntry, bool) {
	e, ok := s.cache.Get(key)
	if !ok {
		return localEntry{}, false
	}
	if e.expired(s.now()) {
		s.cache.Remove(key)
		return localEntry{}, false
	}
	return e, true
}

func (s *localKVStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *localKVStore) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	e, ok := s.load(key)
	s.mu.Unlock()
	if !ok {
		return ErrKeyNotFound
	}

	if err := json.Unmarshal(e.value, dest); err != nil {
		return fmt.Errorf("kvstore: failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

func (s *localKVStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: failed to marshal value for key %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, localEntry{value: data, expiresAt: s.deadline(ttl)})
	return nil
}

func (s *localKVStore) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("kvstore: failed to marshal value for key %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.load(key); ok {
		return false, nil
	}
	s.cache.Add(key, localEntry{value: data, expiresAt: s.deadline(ttl)})
	return true, nil
}

func (s *localKVStore) Incr(_ context.Context, key string, by int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.load(key)
	var current int64
	if ok {
		n, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("kvstore: value at key %s is not an integer", key)
		}
		current = n
	}

	current += by
	e.value = []byte(strconv.FormatInt(current, 10))
	s.cache.Add(key, e)
	return current, nil
}

func (s *localKVStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.load(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		s.cache.Remove(key)
		return nil
	}
	e.expiresAt = s.deadline(ttl)
	s.cache.Add(key, e)
	return nil
}

func (s *localKVStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.cache.Remove(key)
	}
	return nil
}

func (s *localKVStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.load(key)
	return ok, nil
}
