package feeds_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedq/feeds"
	"feedq/models"
	"feedq/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*feeds.Store, *store.Memory) {
	t.Helper()
	records := store.NewMemory()
	return feeds.NewStore(records, feeds.RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}), records
}

func stored(t *testing.T, records store.RecordStore, owner string) *models.Feed {
	t.Helper()
	feed, err := records.Find(context.Background(), store.Filter{Owner: owner})
	require.NoError(t, err)
	return feed
}

func assertInvariants(t *testing.T, feed *models.Feed) {
	t.Helper()
	seen := map[string]bool{}
	for _, id := range feed.Seen {
		assert.False(t, seen[id], "duplicate %q in seen", id)
		seen[id] = true
	}
	available := map[string]bool{}
	for _, id := range feed.Available {
		assert.False(t, available[id], "duplicate %q in available", id)
		assert.False(t, seen[id], "%q is both seen and available", id)
		available[id] = true
	}
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)

	feed, err := s.Create(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", feed.Owner)
	assert.Empty(t, feed.Seen)
	assert.Empty(t, feed.Available)
	assert.NotEmpty(t, feed.ID)

	admitted, err := s.AddToFeed(ctx, "u1", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, admitted)

	next, err := s.GetNext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c", next)

	current := stored(t, records, "u1")
	assert.Equal(t, []string{"c"}, current.Seen)
	assert.Equal(t, []string{"a", "b"}, current.Available)

	admitted, err = s.AddToFeed(ctx, "u1", []string{"c", "d"})
	require.NoError(t, err)
	assert.Equal(t, 1, admitted)

	current = stored(t, records, "u1")
	assert.Equal(t, []string{"a", "b", "d"}, current.Available)
	assertInvariants(t, current)
}

func TestGetNextMovesExactlyOneId(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)
	_, err = s.AddToFeed(ctx, "u1", []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		before := stored(t, records, "u1")
		next, err := s.GetNext(ctx, "u1")
		require.NoError(t, err)
		after := stored(t, records, "u1")

		assert.Len(t, after.Seen, len(before.Seen)+1)
		assert.Len(t, after.Available, len(before.Available)-1)
		assert.Equal(t, before.Available[len(before.Available)-1], next)
		assert.Equal(t, next, after.Seen[len(after.Seen)-1])
		assertInvariants(t, after)
	}

	assert.Equal(t, []string{"d", "c", "b", "a"}, stored(t, records, "u1").Seen)
}

func TestAddToFeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	first, err := s.AddToFeed(ctx, "u1", []string{"x"})
	require.NoError(t, err)
	second, err := s.AddToFeed(ctx, "u1", []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	assert.Equal(t, []string{"x"}, stored(t, records, "u1").Available)
}

func TestAddToFeedSkipsDuplicatesWithinBatch(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	admitted, err := s.AddToFeed(ctx, "u1", []string{"a", "b", "a", "", "  ", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, admitted)
	assert.Equal(t, []string{"a", "b", "c"}, stored(t, records, "u1").Available)
}

func TestGetNextOnExhaustedFeed(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	_, err = s.GetNext(ctx, "u1")
	assert.ErrorIs(t, err, feeds.ErrOutOfContent)
	assert.ErrorIs(t, err, feeds.ErrNotFound)

	_, err = s.AddToFeed(ctx, "u1", []string{"a"})
	require.NoError(t, err)
	_, err = s.GetNext(ctx, "u1")
	require.NoError(t, err)

	// Exhausted again even though seen is not empty
	_, err = s.GetNext(ctx, "u1")
	assert.ErrorIs(t, err, feeds.ErrOutOfContent)
}

func TestAbsentFeed(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.GetNext(ctx, "ghost")
	assert.ErrorIs(t, err, feeds.ErrNoFeed)
	assert.ErrorIs(t, err, feeds.ErrNotFound)
	assert.NotErrorIs(t, err, feeds.ErrOutOfContent)

	_, err = s.AddToFeed(ctx, "ghost", []string{"a"})
	assert.ErrorIs(t, err, feeds.ErrNoFeed)

	assert.NoError(t, s.Delete(ctx, "ghost"))
}

func TestCreateRejectsDuplicatesAndBlankOwners(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	_, err = s.Create(ctx, "u1")
	assert.ErrorIs(t, err, feeds.ErrFeedExists)

	for _, owner := range []string{"", "   "} {
		_, err = s.Create(ctx, owner)
		assert.ErrorIs(t, err, feeds.ErrInvalidOwner)
		_, err = s.GetNext(ctx, owner)
		assert.ErrorIs(t, err, feeds.ErrInvalidOwner)
		assert.ErrorIs(t, s.Delete(ctx, owner), feeds.ErrInvalidOwner)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteReturnsToNoFeed(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)
	_, err = s.AddToFeed(ctx, "u1", []string{"a"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "u1"))
	require.NoError(t, s.Delete(ctx, "u1"))

	_, err = s.GetNext(ctx, "u1")
	assert.ErrorIs(t, err, feeds.ErrNoFeed)

	// A deleted owner can start over
	_, err = s.Create(ctx, "u1")
	require.NoError(t, err)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, owner := range []string{"u1", "u2", "u3"} {
		_, err := s.Create(ctx, owner)
		require.NoError(t, err)
	}

	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConcurrentGetNextDeliversEachIdOnce(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = string(rune('A' + i))
	}
	_, err = s.AddToFeed(ctx, "u1", ids)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered = map[string]int{}
		exhausted int
	)
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := s.GetNext(ctx, "u1")
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, feeds.ErrOutOfContent) {
				exhausted++
				return
			}
			if assert.NoError(t, err) {
				delivered[next]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, delivered, 50)
	assert.Equal(t, 30, exhausted)
	for id, n := range delivered {
		assert.Equal(t, 1, n, "id %q delivered %d times", id, n)
	}

	final := stored(t, records, "u1")
	assert.Empty(t, final.Available)
	assert.Len(t, final.Seen, 50)
	assertInvariants(t, final)
}

func TestConcurrentAddAndPopKeepInvariants(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)
	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddToFeed(ctx, "u1", []string{"a", "b", string(rune('c' + i))})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.GetNext(ctx, "u1")
		}()
	}
	wg.Wait()

	final := stored(t, records, "u1")
	assertInvariants(t, final)
	assert.Len(t, append(final.Seen, final.Available...), 22)
}

// conflictingStore loses the first N conditional updates to a simulated
// writer in another process
type conflictingStore struct {
	*store.Memory
	conflicts int
	updates   int
}

func (c *conflictingStore) Update(ctx context.Context, filter store.Filter, feed *models.Feed) error {
	c.updates++
	if c.conflicts > 0 {
		c.conflicts--
		return store.ErrVersionConflict
	}
	return c.Memory.Update(ctx, filter, feed)
}

func TestVersionConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	records := &conflictingStore{Memory: store.NewMemory(), conflicts: 2}
	s := feeds.NewStore(records, feeds.RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	admitted, err := s.AddToFeed(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, admitted)
	assert.Equal(t, 3, records.updates)
	assert.Equal(t, []string{"a", "b"}, stored(t, records, "u1").Available)
}

func TestVersionConflictGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	records := &conflictingStore{Memory: store.NewMemory(), conflicts: 100}
	s := feeds.NewStore(records, feeds.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	_, err = s.AddToFeed(ctx, "u1", []string{"a"})
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, 3, records.updates)
	assert.Empty(t, stored(t, records, "u1").Available)
}

// failingStore fails every update
type failingStore struct {
	*store.Memory
}

func (failingStore) Update(ctx context.Context, filter store.Filter, feed *models.Feed) error {
	return errors.New("disk full")
}

func TestFailedWriteCommitsNothing(t *testing.T) {
	ctx := context.Background()
	records := failingStore{Memory: store.NewMemory()}
	s := feeds.NewStore(records, feeds.DefaultRetryConfig())

	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	_, err = s.AddToFeed(ctx, "u1", []string{"a", "b"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, feeds.ErrNotFound)

	assert.Empty(t, stored(t, records, "u1").Available)
}

func TestTidyRepairsBrokenRecords(t *testing.T) {
	ctx := context.Background()
	s, records := newStore(t)

	_, err := records.Insert(ctx, &models.Feed{
		ID:        "broken",
		Owner:     "u1",
		Seen:      []string{"a", "a", "b", ""},
		Available: []string{"b", "c", "c", "d"},
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, "u2")
	require.NoError(t, err)
	_, err = s.AddToFeed(ctx, "u2", []string{"x"})
	require.NoError(t, err)

	repaired, err := s.Tidy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	fixed := stored(t, records, "u1")
	assert.Equal(t, []string{"a", "b"}, fixed.Seen)
	assert.Equal(t, []string{"c", "d"}, fixed.Available)
	assertInvariants(t, fixed)

	assert.Equal(t, []string{"x"}, stored(t, records, "u2").Available)

	repaired, err = s.Tidy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}
