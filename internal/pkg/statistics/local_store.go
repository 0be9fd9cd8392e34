package statistics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// DefaultNamespace prefixes every key the local store writes.
const DefaultNamespace = "nomada_"

const (
	keyTotalVisits   = "total_visits"
	keyDailyPrefix   = "daily_visits_"
	keyLastUpdated   = "last_updated"
	keyVisitSession  = "visit_session"
	keyLastVisitTime = "last_visit_time"
	keyInitDataAdded = "init_data_added"
)

// Storage is a persistent string key-value backend.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// SessionMarker identifies the visit session of one browser profile.
type SessionMarker struct {
	SessionID   string
	LastVisitAt time.Time
	// HasTimestamp is false when the stamp is missing or unparsable.
	HasTimestamp bool
}

// LocalStore is the local fallback store. Counters are shared by every
// profile, session markers are scoped to the profile passed to Profile.
type LocalStore struct {
	storage   Storage
	namespace string
	profile   string
	// shared between profile views so read-modify-write increments stay serial
	mu *sync.Mutex
}

func NewLocalStore(storage Storage, namespace string) *LocalStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &LocalStore{
		storage:   storage,
		namespace: namespace,
		mu:        &sync.Mutex{},
	}
}

// Profile returns a view of the store whose session keys belong to id.
func (s *LocalStore) Profile(id string) *LocalStore {
	return &LocalStore{
		storage:   s.storage,
		namespace: s.namespace,
		profile:   id,
		mu:        s.mu,
	}
}

func (s *LocalStore) key(name string) string {
	return s.namespace + name
}

func (s *LocalStore) sessionKey(name string) string {
	if s.profile == "" {
		return s.namespace + name
	}
	return s.namespace + s.profile + "_" + name
}

func (s *LocalStore) getInt(ctx context.Context, key string) (int64, error) {
	raw, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

func (s *LocalStore) setInt(ctx context.Context, key string, n int64) error {
	if err := s.storage.Set(ctx, key, strconv.FormatInt(n, 10)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Total(ctx context.Context) (int64, error) {
	return s.getInt(ctx, s.key(keyTotalVisits))
}

func (s *LocalStore) Increment(ctx context.Context, day string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.getInt(ctx, s.key(keyTotalVisits))
	if err != nil {
		return 0, err
	}
	dailyKey := s.key(keyDailyPrefix + day)
	daily, err := s.getInt(ctx, dailyKey)
	if err != nil {
		return 0, err
	}

	if err := s.setInt(ctx, s.key(keyTotalVisits), total+1); err != nil {
		return 0, err
	}
	if err := s.setInt(ctx, dailyKey, daily+1); err != nil {
		return 0, err
	}
	if err := s.storage.Set(ctx, s.key(keyLastUpdated), at.UTC().Format(time.RFC3339)); err != nil {
		return 0, fmt.Errorf("write %s: %w", keyLastUpdated, err)
	}
	return total + 1, nil
}

func (s *LocalStore) DailyCounts(ctx context.Context, days []string) ([]int64, error) {
	counts := make([]int64, len(days))
	for i, day := range days {
		n, err := s.getInt(ctx, s.key(keyDailyPrefix+day))
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}

// LastUpdated returns the zero time when nothing was counted yet.
func (s *LocalStore) LastUpdated(ctx context.Context) (time.Time, error) {
	raw, ok, err := s.storage.Get(ctx, s.key(keyLastUpdated))
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *LocalStore) SessionMarker(ctx context.Context) (SessionMarker, error) {
	var marker SessionMarker

	id, _, err := s.storage.Get(ctx, s.sessionKey(keyVisitSession))
	if err != nil {
		return marker, fmt.Errorf("read session id: %w", err)
	}
	marker.SessionID = id

	raw, ok, err := s.storage.Get(ctx, s.sessionKey(keyLastVisitTime))
	if err != nil {
		return marker, fmt.Errorf("read last visit time: %w", err)
	}
	if ok {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			marker.LastVisitAt = t
			marker.HasTimestamp = true
		}
	}
	return marker, nil
}

func (s *LocalStore) SetSessionID(ctx context.Context, id string) error {
	return s.storage.Set(ctx, s.sessionKey(keyVisitSession), id)
}

func (s *LocalStore) SetLastVisitAt(ctx context.Context, t time.Time) error {
	return s.storage.Set(ctx, s.sessionKey(keyLastVisitTime), t.UTC().Format(time.RFC3339Nano))
}

// Seeded reports whether sample history was already generated.
func (s *LocalStore) Seeded(ctx context.Context) (bool, error) {
	raw, _, err := s.storage.Get(ctx, s.key(keyInitDataAdded))
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

func (s *LocalStore) MarkSeeded(ctx context.Context) error {
	return s.storage.Set(ctx, s.key(keyInitDataAdded), "true")
}
