package storage

import (
	"sync"
	"testing"
	"time"
)

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewStream("")
	defer s.Close()

	for i := 0; i < 100; i++ {
		s.Publish(ChangeRecord{Event: EventPut, Path: "a", Data: float64(i)})
	}

	for i := 0; i < 100; i++ {
		select {
		case rec := <-s.Events():
			if rec.Data != float64(i) {
				t.Fatalf("record %d out of order: got %v", i, rec.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for record %d", i)
		}
	}
}

func TestStreamPrefixFilter(t *testing.T) {
	s := NewStream("x/posts")
	defer s.Close()

	s.Publish(ChangeRecord{Event: EventPut, Path: "x/posts/1", Data: "in"})
	s.Publish(ChangeRecord{Event: EventPut, Path: "x/msgs/1", Data: "out"})
	s.Publish(ChangeRecord{Event: EventPut, Path: "x/posts/2", Data: "in"})

	for i := 0; i < 2; i++ {
		select {
		case rec := <-s.Events():
			if rec.Data != "in" {
				t.Fatalf("filtered record leaked: %+v", rec)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}

	select {
	case rec := <-s.Events():
		t.Fatalf("unexpected extra record %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamEmptyPrefixMatchesAll(t *testing.T) {
	s := NewStream("")
	defer s.Close()

	s.Publish(ChangeRecord{Event: EventPatch, Path: "anything/at/all"})
	select {
	case <-s.Events():
	case <-time.After(time.Second):
		t.Fatal("empty prefix did not match")
	}
}

func TestStreamCloseClosesEvents(t *testing.T) {
	s := NewStream("")
	s.Close()
	s.Close() // idempotent

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("Events not closed after Close")
	}
}

func TestStreamPublishNeverBlocks(t *testing.T) {
	s := NewStream("")
	defer s.Close()

	// Nobody is draining; a large burst must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			s.Publish(ChangeRecord{Event: EventPut, Path: "p"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on an undrained stream")
	}
}

func TestStreamConcurrentClose(t *testing.T) {
	s := NewStream("")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
