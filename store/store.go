// Package store defines the persistence contracts the feed queue depends on
package store

import (
	"context"
	"errors"

	"feedq/models"
)

var (
	// ErrNoRecord is returned when no record matches a filter
	ErrNoRecord = errors.New("no matching record")

	// ErrDuplicate is returned when inserting a second record for an owner
	ErrDuplicate = errors.New("record already exists for owner")

	// ErrVersionConflict is returned when a conditional update lost the race
	ErrVersionConflict = errors.New("record version changed")

	// ErrEmptyFilter is returned by Update and Remove when the filter would
	// match every record
	ErrEmptyFilter = errors.New("refusing to write with an empty filter")
)

// Filter matches records on every non-zero field
type Filter struct {
	ID    string
	Owner string

	// Version makes Update conditional on the stored version
	Version int64
}

func (f Filter) IsEmpty() bool {
	return f.ID == "" && f.Owner == "" && f.Version == 0
}

// Matches reports whether the record satisfies the filter
func (f Filter) Matches(feed *models.Feed) bool {
	if f.ID != "" && feed.ID != f.ID {
		return false
	}
	if f.Owner != "" && feed.Owner != f.Owner {
		return false
	}
	if f.Version != 0 && feed.Version != f.Version {
		return false
	}
	return true
}

// RecordStore persists one feed record per owner.
//
// Update overwrites the seen and available collections of the matched record
// and increments its version. When the filter carries a version and nothing
// matches, Update returns ErrVersionConflict; otherwise ErrNoRecord.
type RecordStore interface {
	Find(ctx context.Context, filter Filter) (*models.Feed, error)
	FindAll(ctx context.Context, filter Filter) ([]*models.Feed, error)
	Insert(ctx context.Context, feed *models.Feed) (string, error)
	Update(ctx context.Context, filter Filter, feed *models.Feed) error
	Remove(ctx context.Context, filter Filter) (int64, error)
}

// ContentCatalog registers candidate content ids in arrival order
type ContentCatalog interface {
	// AddContent returns false if the id was already registered
	AddContent(ctx context.Context, id string) (bool, error)

	// RecentContent returns at most n ids, newest first
	RecentContent(ctx context.Context, n int) ([]string, error)
}

// Backend is a storage implementation that serves both contracts
type Backend interface {
	RecordStore
	ContentCatalog
	Close() error
}
