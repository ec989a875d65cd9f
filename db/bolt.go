package db

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"feedq/models"
	"feedq/store"

	bolt "go.etcd.io/bbolt"
)

var (
	feedsBucket      = []byte("feeds")
	contentBucket    = []byte("content")
	contentSeqBucket = []byte("content_seq")
)

// BoltStore is an embedded backend. Feeds are keyed by owner and every
// mutation runs inside a single read-write transaction.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

var _ store.Backend = (*BoltStore)(nil)

func OpenBolt(path string, timeout time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{feedsBucket, contentBucket, contentSeqBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Find(ctx context.Context, filter store.Filter) (*models.Feed, error) {
	var found *models.Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		feed, err := findFeed(tx.Bucket(feedsBucket), filter)
		found = feed
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BoltStore) FindAll(ctx context.Context, filter store.Filter) ([]*models.Feed, error) {
	feeds := []*models.Feed{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(feedsBucket).ForEach(func(_ []byte, v []byte) error {
			feed, err := decodeFeed(v)
			if err != nil {
				return err
			}
			if filter.Matches(feed) {
				feeds = append(feeds, feed)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(feeds, func(i, j int) bool {
		if feeds[i].CreatedAt.Equal(feeds[j].CreatedAt) {
			return feeds[i].Owner < feeds[j].Owner
		}
		return feeds[i].CreatedAt.Before(feeds[j].CreatedAt)
	})
	return feeds, nil
}

func (s *BoltStore) Insert(ctx context.Context, feed *models.Feed) (string, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		if b.Get([]byte(feed.Owner)) != nil {
			return store.ErrDuplicate
		}

		stored := feed.Clone()
		now := s.now()
		stored.Version = 1
		stored.CreatedAt = now
		stored.UpdatedAt = now
		return putFeed(b, stored)
	})
	if err != nil {
		return "", err
	}
	return feed.ID, nil
}

func (s *BoltStore) Update(ctx context.Context, filter store.Filter, feed *models.Feed) error {
	if filter.IsEmpty() {
		return store.ErrEmptyFilter
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		target, err := findFeed(b, filter)
		if err == store.ErrNoRecord && filter.Version != 0 {
			return store.ErrVersionConflict
		}
		if err != nil {
			return err
		}

		next := feed.Clone()
		target.Seen = next.Seen
		target.Available = next.Available
		target.Version++
		target.UpdatedAt = s.now()
		return putFeed(b, target)
	})
}

func (s *BoltStore) Remove(ctx context.Context, filter store.Filter) (int64, error) {
	if filter.IsEmpty() {
		return 0, store.ErrEmptyFilter
	}

	var removed int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)

		// Collect first, deleting while iterating skips keys
		var keys [][]byte
		err := b.ForEach(func(k []byte, v []byte) error {
			feed, err := decodeFeed(v)
			if err != nil {
				return err
			}
			if filter.Matches(feed) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *BoltStore) AddContent(ctx context.Context, id string) (bool, error) {
	added := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		content := tx.Bucket(contentBucket)
		if content.Get([]byte(id)) != nil {
			return nil
		}

		sequence := tx.Bucket(contentSeqBucket)
		seq, err := sequence.NextSequence()
		if err != nil {
			return err
		}
		key := itob(seq)
		if err := sequence.Put(key, []byte(id)); err != nil {
			return err
		}
		added = true
		return content.Put([]byte(id), key)
	})
	return added, err
}

func (s *BoltStore) RecentContent(ctx context.Context, n int) ([]string, error) {
	ids := []string{}
	if n <= 0 {
		return ids, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(contentSeqBucket).Cursor()
		for k, v := c.Last(); k != nil && len(ids) < n; k, v = c.Prev() {
			ids = append(ids, string(v))
		}
		return nil
	})
	return ids, err
}

// findFeed resolves the filter inside a transaction. Owner lookups hit the
// key directly, anything else scans the bucket.
func findFeed(b *bolt.Bucket, filter store.Filter) (*models.Feed, error) {
	if filter.Owner != "" {
		data := b.Get([]byte(filter.Owner))
		if data == nil {
			return nil, store.ErrNoRecord
		}
		feed, err := decodeFeed(data)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(feed) {
			return nil, store.ErrNoRecord
		}
		return feed, nil
	}

	var found *models.Feed
	err := b.ForEach(func(_ []byte, v []byte) error {
		if found != nil {
			return nil
		}
		feed, err := decodeFeed(v)
		if err != nil {
			return err
		}
		if filter.Matches(feed) {
			found = feed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, store.ErrNoRecord
	}
	return found, nil
}

func putFeed(b *bolt.Bucket, feed *models.Feed) error {
	data, err := json.Marshal(feed)
	if err != nil {
		return err
	}
	return b.Put([]byte(feed.Owner), data)
}

func decodeFeed(data []byte) (*models.Feed, error) {
	var feed models.Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if feed.Seen == nil {
		feed.Seen = []string{}
	}
	if feed.Available == nil {
		feed.Available = []string{}
	}
	return &feed, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
