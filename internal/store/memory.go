package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entryKind int

const (
	kindScalar entryKind = iota
	kindList
	kindSet
)

type entry struct {
	kind      entryKind
	value     string
	list      []string
	set       map[string]struct{}
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryStore is the in-process Store used when no Redis address is
// configured, and by most tests. A janitor goroutine sweeps expired keys;
// reads also check expiry lazily so behavior does not depend on sweep
// timing.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	log     *zap.SugaredLogger

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// NewMemoryStore creates a new in-memory store. ttl <= 0 falls back to
// DefaultTTL.
func NewMemoryStore(ttl time.Duration, log *zap.SugaredLogger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		ttl:         ttl,
		log:         log,
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Close stops the janitor. Safe to call once.
func (s *MemoryStore) Close() {
	close(s.janitorStop)
	<-s.janitorDone
}

func (s *MemoryStore) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.janitorStop:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 && s.log != nil {
		s.log.Debugw("swept expired keys", "count", removed)
	}
}

// live returns the entry at key if present and unexpired. Caller holds at
// least a read lock.
func (s *MemoryStore) live(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	defer observe("get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.live(key)
	if !ok || e.kind != kindScalar {
		return "", errAbsent(key)
	}
	return e.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	defer observe("set", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{
		kind:      kindScalar,
		value:     value,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	defer observe("delete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) ListAppend(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	defer observe("list_append", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		e = &entry{kind: kindList}
		s.entries[key] = e
	}
	if e.kind != kindList {
		return fmt.Errorf("wrong kind for list append on %s", key)
	}
	e.list = append(e.list, values...)
	e.expiresAt = time.Now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	defer observe("list_range", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.live(key)
	if !ok || e.kind != kindList {
		return []string{}, nil
	}
	n := int64(len(e.list))
	// LRANGE index semantics: negatives count from the tail, bounds clamp.
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) SetAdd(ctx context.Context, key, member string) (bool, error) {
	defer observe("set_add", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		e = &entry{kind: kindSet, set: make(map[string]struct{})}
		s.entries[key] = e
	}
	if e.kind != kindSet {
		return false, fmt.Errorf("wrong kind for set add on %s", key)
	}
	_, exists := e.set[member]
	e.set[member] = struct{}{}
	e.expiresAt = time.Now().Add(s.ttl)
	return !exists, nil
}

func (s *MemoryStore) SetSize(ctx context.Context, key string) (int64, error) {
	defer observe("set_size", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.live(key)
	if !ok || e.kind != kindSet {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	defer observe("expire", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.live(key); ok {
		e.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
