package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewGenerator(t *testing.T) {
	if _, err := NewGenerator(0); err != nil {
		t.Fatalf("NewGenerator(0) failed: %v", err)
	}
	if _, err := NewGenerator(1023); err != nil {
		t.Fatalf("NewGenerator(1023) failed: %v", err)
	}
	if _, err := NewGenerator(1024); err != ErrInvalidWorkerID {
		t.Errorf("Expected ErrInvalidWorkerID, got %v", err)
	}
	if _, err := NewGenerator(-1); err != ErrInvalidWorkerID {
		t.Errorf("Expected ErrInvalidWorkerID, got %v", err)
	}
}

func TestNextMonotonic(t *testing.T) {
	g, err := NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}

	var prev int64
	for i := 0; i < 10000; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if id <= prev {
			t.Fatalf("IDs not strictly increasing: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	g, err := NewGenerator(7)
	if err != nil {
		t.Fatal(err)
	}

	before := time.Now().Truncate(time.Millisecond)
	id, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	after := time.Now()

	ts := Timestamp(id)
	if ts.Before(before) || ts.After(after) {
		t.Errorf("Timestamp(%d) = %v, want within [%v, %v]", id, ts, before, after)
	}
}

func TestProperty_IDUniqueness(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("all generated IDs are unique", prop.ForAll(
		func(count int) bool {
			g, err := NewGenerator(1)
			if err != nil {
				return false
			}

			ids := make(map[int64]bool)
			for range count {
				id, err := g.Next()
				if err != nil {
					return false
				}
				if ids[id] {
					return false
				}
				ids[id] = true
			}
			return len(ids) == count
		},
		gen.IntRange(100, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestConcurrentUniqueness(t *testing.T) {
	g, err := NewGenerator(2)
	if err != nil {
		t.Fatal(err)
	}

	const goroutines = 8
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]bool, goroutines*perGoroutine)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id, err := g.Next()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate ID %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
