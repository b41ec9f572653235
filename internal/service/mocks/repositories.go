package mocks

import (
	"context"
	"sync"

	"github.com/SergeiKhy/minilinks/internal/models"
	"github.com/SergeiKhy/minilinks/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing.
// A single mutex makes every operation atomic, like a row lock in the real stores.
type MockLinkRepository struct {
	mu    sync.Mutex
	links map[string]*models.Link
	err   error
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links: make(map[string]*models.Link),
	}
}

// FailWith makes every subsequent call return err (nil restores normal behaviour).
func (m *MockLinkRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if _, exists := m.links[link.ID]; exists {
		return repository.ErrIDExists
	}

	m.links[link.ID] = cloneLink(link)
	return nil
}

func (m *MockLinkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	link, exists := m.links[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return cloneLink(link), nil
}

func (m *MockLinkRepository) Update(ctx context.Context, id string, update *models.LinkUpdate) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	link, exists := m.links[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}

	if update.URL != nil {
		link.URL = *update.URL
	}
	if update.Note != nil {
		note := *update.Note
		link.Note = &note
	}
	link.UpdatedAt = max(update.UpdatedAt, link.CreatedAt)
	return cloneLink(link), nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if _, exists := m.links[id]; !exists {
		return repository.ErrLinkNotFound
	}
	delete(m.links, id)
	return nil
}

func (m *MockLinkRepository) IncrementClicks(ctx context.Context, id string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	link, exists := m.links[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	link.Clicks++
	return cloneLink(link), nil
}

// Len returns the number of stored links.
func (m *MockLinkRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.err = nil
}

func cloneLink(link *models.Link) *models.Link {
	c := *link
	if link.Note != nil {
		note := *link.Note
		c.Note = &note
	}
	return &c
}
