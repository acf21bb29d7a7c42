package replay

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTryInsertOnce(t *testing.T) {
	s := NewMemoryStore(time.Hour)

	if !s.TryInsert("nonce-1") {
		t.Fatalf("first TryInsert returned false")
	}
	if s.TryInsert("nonce-1") {
		t.Fatalf("second TryInsert returned true")
	}
	if !s.Has("nonce-1") {
		t.Fatalf("Has returned false for inserted key")
	}
}

func TestRemoveAllowsReinsert(t *testing.T) {
	s := NewMemoryStore(time.Hour)

	s.TryInsert("nonce-1")
	s.Remove("nonce-1")

	if s.Has("nonce-1") {
		t.Fatalf("Has returned true after Remove")
	}
	if !s.TryInsert("nonce-1") {
		t.Fatalf("TryInsert returned false after Remove")
	}
}

func TestConcurrentInsertSingleWinner(t *testing.T) {
	s := NewMemoryStore(time.Hour)

	const workers = 64
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.TryInsert("contested")
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for inserted := range results {
		if inserted {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestRetentionExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	if !s.TryInsert("nonce-1") {
		t.Fatalf("TryInsert returned false")
	}

	current = current.Add(30 * time.Second)
	if !s.Has("nonce-1") {
		t.Fatalf("entry expired before retention elapsed")
	}

	current = current.Add(2 * time.Minute)
	if s.Has("nonce-1") {
		t.Fatalf("entry survived past retention")
	}
	if !s.TryInsert("nonce-1") {
		t.Fatalf("TryInsert returned false after expiry")
	}
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		s.TryInsert(fmt.Sprintf("old-%d", i))
	}
	current = current.Add(2 * time.Minute)
	s.TryInsert("fresh")

	if got := s.Len(); got != 1 {
		t.Fatalf("Len = %d after sweep, want 1", got)
	}
	if !s.Has("fresh") {
		t.Fatalf("fresh entry swept")
	}
}
