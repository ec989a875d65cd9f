package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"feedq/models"
)

// Memory keeps every record in process memory. It is used by tests and by
// the memory backend of the serve command.
type Memory struct {
	mu      sync.RWMutex
	feeds   map[string]*models.Feed // keyed by owner
	content []string
	known   map[string]struct{}
	now     func() time.Time
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		feeds: make(map[string]*models.Feed),
		known: make(map[string]struct{}),
		now:   time.Now,
	}
}

func (m *Memory) Find(ctx context.Context, filter Filter) (*models.Feed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if filter.Owner != "" {
		feed, ok := m.feeds[filter.Owner]
		if !ok || !filter.Matches(feed) {
			return nil, ErrNoRecord
		}
		return feed.Clone(), nil
	}

	for _, feed := range m.sorted() {
		if filter.Matches(feed) {
			return feed.Clone(), nil
		}
	}
	return nil, ErrNoRecord
}

func (m *Memory) FindAll(ctx context.Context, filter Filter) ([]*models.Feed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Feed{}
	for _, feed := range m.sorted() {
		if filter.Matches(feed) {
			out = append(out, feed.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, feed *models.Feed) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.feeds[feed.Owner]; ok {
		return "", ErrDuplicate
	}

	stored := feed.Clone()
	now := m.now()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.feeds[feed.Owner] = stored

	return stored.ID, nil
}

func (m *Memory) Update(ctx context.Context, filter Filter, feed *models.Feed) error {
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var target *models.Feed
	for _, candidate := range m.feeds {
		if filter.Matches(candidate) {
			target = candidate
			break
		}
	}
	if target == nil {
		if filter.Version != 0 {
			return ErrVersionConflict
		}
		return ErrNoRecord
	}

	next := feed.Clone()
	target.Seen = next.Seen
	target.Available = next.Available
	target.Version++
	target.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Remove(ctx context.Context, filter Filter) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for owner, feed := range m.feeds {
		if filter.Matches(feed) {
			delete(m.feeds, owner)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) AddContent(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.known[id]; ok {
		return false, nil
	}
	m.known[id] = struct{}{}
	m.content = append(m.content, id)
	return true, nil
}

func (m *Memory) RecentContent(ctx context.Context, n int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []string{}
	for i := len(m.content) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.content[i])
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}

// sorted returns records in creation order. Callers hold the lock.
func (m *Memory) sorted() []*models.Feed {
	out := make([]*models.Feed, 0, len(m.feeds))
	for _, feed := range m.feeds {
		out = append(out, feed)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Owner < out[j].Owner
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
