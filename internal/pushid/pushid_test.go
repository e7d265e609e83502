package pushid

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

var idPattern = regexp.MustCompile(`^[-0-9A-Z_a-z]{20}$`)

// fixedClock returns a clock stuck at ms until advance is called.
type fixedClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *fixedClock) advance(d int64) {
	c.mu.Lock()
	c.ms += d
	c.mu.Unlock()
}

func newTestGenerator(ms int64) (*Generator, *fixedClock) {
	clock := &fixedClock{ms: ms}
	g := New()
	g.now = clock.now
	return g, clock
}

func TestNextShape(t *testing.T) {
	g := New()
	for i := 0; i < 100; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		if !idPattern.MatchString(id) {
			t.Fatalf("id %q does not match %s", id, idPattern)
		}
	}
}

func TestTimestampEncoding(t *testing.T) {
	// 1 ms since epoch encodes as seven leading '-' (zero) digits and '0'.
	g, _ := newTestGenerator(1)
	id, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := id[:8], "-------0"; got != want {
		t.Errorf("timestamp chars = %q, want %q", got, want)
	}
}

func TestOrderingAcrossMilliseconds(t *testing.T) {
	g, clock := newTestGenerator(1_700_000_000_000)
	a, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(1)
	b, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
}

func TestOrderingWithinSameMillisecond(t *testing.T) {
	g, _ := newTestGenerator(1_700_000_000_000)
	prev, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatal(err)
		}
		if id[:8] != prev[:8] {
			t.Fatalf("timestamp prefix changed under a fixed clock: %q vs %q", id, prev)
		}
		if !(prev < id) {
			t.Fatalf("ordering violated within one ms: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestIncrementCarries(t *testing.T) {
	g, _ := newTestGenerator(1_700_000_000_000)
	if _, err := g.Next(); err != nil {
		t.Fatal(err)
	}
	// Force a suffix ending in 63s so the carry must ripple.
	g.lastRand = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 5, 63, 63, 63}
	id, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Repeat(string(Alphabet[0]), 8) // digits 0..7 stay zero
	if got := id[8:16]; got != want[:8] {
		t.Errorf("untouched digits = %q, want %q", got, want[:8])
	}
	if got, want := id[16], Alphabet[6]; got != want {
		t.Errorf("carried digit = %c, want %c", got, want)
	}
	for i := 17; i < 20; i++ {
		if id[i] != Alphabet[0] {
			t.Errorf("digit %d = %c, want rolled over to %c", i, id[i], Alphabet[0])
		}
	}
}

func TestRandomOverflowWaitsForClock(t *testing.T) {
	g, clock := newTestGenerator(1_700_000_000_000)
	if _, err := g.Next(); err != nil {
		t.Fatal(err)
	}
	g.lastRand = [12]byte{63, 63, 63, 63, 63, 63, 63, 63, 63, 63, 63, 63}

	// Unstick the clock from another goroutine; Next must spin until then.
	done := make(chan string, 1)
	go func() {
		id, err := g.Next()
		if err != nil {
			t.Error(err)
		}
		done <- id
	}()
	time.Sleep(10 * time.Millisecond)
	clock.advance(1)

	select {
	case id := <-done:
		if !idPattern.MatchString(id) {
			t.Errorf("id after overflow %q malformed", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after clock advanced")
	}
}

func TestConcurrentUnique(t *testing.T) {
	g := New()
	const workers, per = 8, 200
	ids := make(chan string, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id, err := g.Next()
				if err != nil {
					t.Error(err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, workers*per)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
