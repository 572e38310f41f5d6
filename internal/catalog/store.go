package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"storeadmin/internal/caching"
	"storeadmin/internal/models"

	"go.uber.org/zap"
)

// noParent is the value the category form posts for "No Parent".
const noParent = "0"

// CategoryAPI is the part of Client the Store needs.
type CategoryAPI interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, in models.CategoryInput) error
	DeleteCategory(ctx context.Context, id string) error
}

// Store keeps the read-only category snapshot that forms resolve properties against.
// Every mutation goes through the API and then reloads the snapshot.
type Store struct {
	api    CategoryAPI
	cache  caching.CacheService
	ttl    time.Duration
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	snapshot  []models.Category
	refreshed time.Time
}

// NewStore creates a category store. cache may be nil.
func NewStore(api CategoryAPI, cache caching.CacheService, ttl time.Duration, logger *zap.SugaredLogger) *Store {
	return &Store{
		api:      api,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		snapshot: []models.Category{},
	}
}

// Load returns the current categories, preferring the shared cache over the API.
func (s *Store) Load(ctx context.Context) ([]models.Category, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetCategories(ctx); cached != nil {
			s.replace(cached)
			return s.Snapshot(), nil
		} else if err != nil {
			s.logger.Warnw("category cache read failed", "error", err)
		}
	}
	return s.Refresh(ctx)
}

// Refresh reloads the snapshot from the API and repopulates the cache.
func (s *Store) Refresh(ctx context.Context) ([]models.Category, error) {
	categories, err := s.api.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.replace(categories)

	if s.cache != nil {
		if cacheErr := s.cache.SetCategories(ctx, categories, s.ttl); cacheErr != nil {
			s.logger.Warnw("failed to cache categories", "error", cacheErr)
		}
	}

	s.logger.Debugw("category snapshot refreshed", "count", len(categories))
	return s.Snapshot(), nil
}

// Snapshot returns a copy of the last loaded category list.
func (s *Store) Snapshot() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Category, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// RefreshedAt reports when the snapshot was last replaced.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}

// Save creates the category when in.ID is empty and updates it otherwise.
func (s *Store) Save(ctx context.Context, in models.CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.ParentCategory == noParent {
		in.ParentCategory = ""
	}
	if in.Properties == nil {
		in.Properties = []models.PropertySpec{}
	}

	if in.ID == "" {
		created, err := s.api.CreateCategory(ctx, in)
		if err != nil {
			return err
		}
		s.logger.Infow("category created", "id", created.ID, "name", in.Name)
	} else {
		if err := s.api.UpdateCategory(ctx, in); err != nil {
			return err
		}
		s.logger.Infow("category updated", "id", in.ID, "name", in.Name)
	}

	s.afterMutation(ctx)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("category deleted", "id", id)
	s.afterMutation(ctx)
	return nil
}

// afterMutation reloads the snapshot once the catalog has accepted a change. A failed
// reload leaves the previous snapshot in place until the scheduled refresh.
func (s *Store) afterMutation(ctx context.Context) {
	if s.cache != nil {
		if cacheErr := s.cache.DeleteCategories(ctx); cacheErr != nil {
			s.logger.Warnw("failed to invalidate category cache", "error", cacheErr)
		}
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warnw("category refresh after change failed", "error", err)
	}
}

func (s *Store) replace(categories []models.Category) {
	snapshot := make([]models.Category, len(categories))
	copy(snapshot, categories)

	s.mu.Lock()
	s.snapshot = snapshot
	s.refreshed = time.Now()
	s.mu.Unlock()
}
