package store

import (
	"context"
	"path"
	"sync"
	"time"
)

type memEntry struct {
	hash     map[string]string
	set      map[string]struct{}
	expireAt time.Time // zero means no TTL
}

// MemoryStore emulates the store for tests and single-process runs. The clock
// is injectable so TTL behavior can be tested without sleeping.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memEntry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*memEntry),
		now:  time.Now,
	}
}

// SetClock replaces the time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// get drops the entry if its TTL elapsed, matching autonomous store expiry.
func (s *MemoryStore) get(key string) (*memEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) getOrCreate(key string) *memEntry {
	if e, ok := s.get(key); ok {
		return e
	}
	e := &memEntry{hash: make(map[string]string), set: make(map[string]struct{})}
	s.data[key] = e
	return e
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(key).hash[field] = value
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.get(key); ok {
		if v, ok := e.hash[field]; ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if e, ok := s.get(key); ok {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) HDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.get(key); ok {
		delete(e.hash, field)
		if len(e.hash) == 0 && len(e.set) == 0 {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *MemoryStore) SAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(key).set[member] = struct{}{}
	return nil
}

func (s *MemoryStore) SRem(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return false, nil
	}
	if _, present := e.set[member]; !present {
		return false, nil
	}
	delete(e.set, member)
	if len(e.hash) == 0 && len(e.set) == 0 {
		delete(s.data, key)
	}
	return true, nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	if e, ok := s.get(key); ok {
		for m := range e.set {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.get(key); ok {
		return int64(len(e.set)), nil
	}
	return 0, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return false, nil
	}
	e.expireAt = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(key)
	return ok, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.data {
		if _, ok := s.get(k); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }
