// Package feeds implements the per-owner content delivery queue.
//
// Every owner has one feed with two disjoint collections: ids that are
// queued for delivery (available) and ids that were already delivered
// (seen). GetNext pops from the tail of available, so the most recently
// admitted id is delivered first.
//
// Mutations are read-modify-write cycles against the record store. They are
// serialised per owner inside the process and made conditional on the record
// version so that writers in other processes cannot cause lost updates.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedq/models"
	"feedq/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// RetryConfig bounds the retries of a mutation that lost a version race
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// Store owns all feed state through a record store
type Store struct {
	records store.RecordStore
	locks   *ownerLocks
	retry   RetryConfig
}

func NewStore(records store.RecordStore, retry RetryConfig) *Store {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Store{
		records: records,
		locks:   newOwnerLocks(),
		retry:   retry,
	}
}

// Create inserts an empty feed for owner. A second feed for the same owner
// is rejected with ErrFeedExists.
func (s *Store) Create(ctx context.Context, owner string) (*models.Feed, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(owner)
	defer unlock()

	id, err := s.records.Insert(ctx, &models.Feed{
		ID:        uuid.NewString(),
		Owner:     owner,
		Seen:      []string{},
		Available: []string{},
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("user %s: %w", owner, ErrFeedExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert feed: %w", err)
	}

	feed, err := s.records.Find(ctx, store.Filter{ID: id})
	if err != nil {
		return nil, fmt.Errorf("read created feed: %w", err)
	}

	feedsCreated.Inc()
	log.WithFields(log.Fields{
		"owner": owner,
		"id":    id,
	}).Info("Created feed")

	return feed, nil
}

// GetNext moves the last available id to seen and returns it
func (s *Store) GetNext(ctx context.Context, owner string) (string, error) {
	var next string

	err := s.mutate(ctx, owner, func(feed *models.Feed) (bool, error) {
		if len(feed.Available) == 0 {
			return false, fmt.Errorf("user %s: %w", owner, ErrOutOfContent)
		}
		last := len(feed.Available) - 1
		next = feed.Available[last]
		feed.Available = feed.Available[:last]
		feed.Seen = append(feed.Seen, next)
		return true, nil
	})
	if errors.Is(err, ErrOutOfContent) {
		feedsExhausted.Inc()
	}
	if err != nil {
		return "", err
	}

	itemsDelivered.Inc()
	log.WithFields(log.Fields{
		"owner":   owner,
		"content": next,
	}).Debug("Delivered content")

	return next, nil
}

// AddToFeed appends every id that is neither seen nor queued and returns how
// many were admitted. The batch is persisted with a single write.
func (s *Store) AddToFeed(ctx context.Context, owner string, ids []string) (int, error) {
	var admitted int

	err := s.mutate(ctx, owner, func(feed *models.Feed) (bool, error) {
		admitted = 0
		known := make(map[string]struct{}, len(feed.Seen)+len(feed.Available)+len(ids))
		for _, id := range feed.Seen {
			known[id] = struct{}{}
		}
		for _, id := range feed.Available {
			known[id] = struct{}{}
		}

		for _, id := range ids {
			if strings.TrimSpace(id) == "" {
				continue
			}
			if _, ok := known[id]; ok {
				continue
			}
			known[id] = struct{}{}
			feed.Available = append(feed.Available, id)
			admitted++
		}
		return admitted > 0, nil
	})
	if err != nil {
		return 0, err
	}

	itemsAdmitted.Add(float64(admitted))
	itemsSkipped.Add(float64(len(ids) - admitted))
	log.WithFields(log.Fields{
		"owner":      owner,
		"candidates": len(ids),
		"admitted":   admitted,
	}).Info("Added content to feed")

	return admitted, nil
}

// Delete removes the owner's feed. Deleting a missing feed is not an error.
func (s *Store) Delete(ctx context.Context, owner string) error {
	if err := validateOwner(owner); err != nil {
		return err
	}

	unlock := s.locks.Lock(owner)
	defer unlock()

	removed, err := s.records.Remove(ctx, store.Filter{Owner: owner})
	if err != nil {
		return fmt.Errorf("remove feed: %w", err)
	}

	if removed > 0 {
		feedsDeleted.Add(float64(removed))
		log.WithFields(log.Fields{
			"owner": owner,
		}).Info("Deleted feed")
	}
	return nil
}

// List returns every stored feed
func (s *Store) List(ctx context.Context) ([]*models.Feed, error) {
	feeds, err := s.records.FindAll(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// Tidy rewrites records that break the queue invariants: blank ids,
// duplicates inside a collection and ids that are both seen and available.
// The first occurrence wins and an id present in both stays seen. Returns the
// number of records rewritten.
func (s *Store) Tidy(ctx context.Context) (int, error) {
	feeds, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, feed := range feeds {
		changed := false
		err := s.mutate(ctx, feed.Owner, func(current *models.Feed) (bool, error) {
			changed = repair(current)
			return changed, nil
		})
		if errors.Is(err, ErrNoFeed) {
			// Deleted since we listed it
			continue
		}
		if err != nil {
			return repaired, err
		}
		if changed {
			repaired++
			log.WithFields(log.Fields{
				"owner": feed.Owner,
			}).Warn("Repaired feed record")
		}
	}

	return repaired, nil
}

// mutate runs fn against a fresh copy of the owner's feed and writes it back
// conditionally on the version that was read. Lost races are retried with
// exponential backoff; errors returned by fn are final.
func (s *Store) mutate(ctx context.Context, owner string, fn func(feed *models.Feed) (bool, error)) error {
	if err := validateOwner(owner); err != nil {
		return err
	}

	unlock := s.locks.Lock(owner)
	defer unlock()

	op := func() error {
		feed, err := s.records.Find(ctx, store.Filter{Owner: owner})
		if errors.Is(err, store.ErrNoRecord) {
			return backoff.Permanent(fmt.Errorf("user %s: %w", owner, ErrNoFeed))
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("find feed: %w", err))
		}

		changed, err := fn(feed)
		if err != nil || !changed {
			return backoff.Permanent(err)
		}

		err = s.records.Update(ctx, store.Filter{Owner: owner, Version: feed.Version}, feed)
		if errors.Is(err, store.ErrVersionConflict) {
			versionConflicts.Inc()
			return fmt.Errorf("update feed: %w", err)
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("update feed: %w", err))
		}
		return nil
	}

	return backoff.RetryNotify(op, s.retryPolicy(ctx), func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"owner": owner,
			"wait":  wait,
			"error": err,
		}).Warn("Feed changed concurrently, retrying")
	})
}

func (s *Store) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retry.MaxAttempts-1)), ctx)
}

// repair restores the queue invariants in place and reports whether anything changed
func repair(feed *models.Feed) bool {
	nonBlank := func(id string, _ int) bool {
		return strings.TrimSpace(id) != ""
	}

	seen := lo.Uniq(lo.Filter(feed.Seen, nonBlank))
	inSeen := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		inSeen[id] = struct{}{}
	}

	available := lo.Uniq(lo.Filter(feed.Available, func(id string, i int) bool {
		_, dup := inSeen[id]
		return nonBlank(id, i) && !dup
	}))

	changed := len(seen) != len(feed.Seen) || len(available) != len(feed.Available)
	feed.Seen = seen
	feed.Available = available
	return changed
}

func validateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrInvalidOwner
	}
	return nil
}
