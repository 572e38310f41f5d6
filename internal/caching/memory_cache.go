package caching

import (
	"context"
	"sync"
	"time"

	"storeadmin/internal/models"
)

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time // zero means no expiry
}

type memoryCacheService struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCacheService keeps entries in process. Used when REDIS_ADDR is unset; state is
// not shared between replicas.
func NewMemoryCacheService() CacheService {
	return &memoryCacheService{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *memoryCacheService) get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *memoryCacheService) set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *memoryCacheService) del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memoryCacheService) GetCategories(ctx context.Context) ([]models.Category, error) {
	v, ok := m.get(categoriesKey)
	if !ok {
		return nil, nil
	}
	cached := v.([]models.Category)
	out := make([]models.Category, len(cached))
	copy(out, cached)
	return out, nil
}

func (m *memoryCacheService) SetCategories(ctx context.Context, categories []models.Category, ttl time.Duration) error {
	stored := make([]models.Category, len(categories))
	copy(stored, categories)
	m.set(categoriesKey, stored, ttl)
	return nil
}

func (m *memoryCacheService) DeleteCategories(ctx context.Context) error {
	m.del(categoriesKey)
	return nil
}

func (m *memoryCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.set(keyPrefix+key, value, ttl)
	return nil
}

func (m *memoryCacheService) GetString(ctx context.Context, key string) (string, error) {
	v, ok := m.get(keyPrefix + key)
	if !ok {
		return "", nil
	}
	return v.(string), nil
}

func (m *memoryCacheService) Delete(ctx context.Context, key string) error {
	m.del(keyPrefix + key)
	return nil
}

func (m *memoryCacheService) Ping(ctx context.Context) error {
	return nil
}
