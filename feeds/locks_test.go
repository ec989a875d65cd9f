package feeds

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOwnerLocksDropReleasedEntries(t *testing.T) {
	locks := newOwnerLocks()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.held())

	unlockA()
	assert.Equal(t, 1, locks.held())
	unlockB()
	assert.Equal(t, 0, locks.held())
}

func TestOwnerLocksKeepEntryWhileWaitersRemain(t *testing.T) {
	locks := newOwnerLocks()
	unlock := locks.Lock("a")

	acquired := make(chan func())
	go func() {
		acquired <- locks.Lock("a")
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	// The waiter still references the entry
	second := <-acquired
	assert.Equal(t, 1, locks.held())

	second()
	assert.Equal(t, 0, locks.held())
}

func TestOwnerLocksUnderContention(t *testing.T) {
	locks := newOwnerLocks()
	var a, b, c int
	counter := map[string]*int{"a": &a, "b": &b, "c": &c}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		owner := []string{"a", "b", "c"}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(owner)
			defer unlock()
			*counter[owner]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 34, a)
	assert.Equal(t, 33, b)
	assert.Equal(t, 33, c)
	assert.Equal(t, 0, locks.held())
}
