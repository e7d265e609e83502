package storage

import "sync"

// Stream is the consumer half of a subscription pipeline: an unbounded FIFO
// with a path-prefix filter in front and a delivery channel behind. Both
// backends feed one Stream per subscription — the Postgres notifier from its
// LISTEN goroutine, the memory backend from its publish path — so publishing
// never blocks on a slow consumer.
type Stream struct {
	prefix string

	mu  sync.Mutex
	buf []ChangeRecord

	wake chan struct{}
	done chan struct{}
	out  chan ChangeRecord

	closeOnce sync.Once
}

// NewStream creates a stream delivering records whose Path starts with
// prefix. An empty prefix matches every record. The pump goroutine runs
// until Close.
func NewStream(prefix string) *Stream {
	s := &Stream{
		prefix: prefix,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan ChangeRecord),
	}
	go s.pump()
	return s
}

// Publish enqueues rec if it passes the prefix filter. Never blocks.
func (s *Stream) Publish(rec ChangeRecord) {
	if !s.matches(rec.Path) {
		return
	}
	s.mu.Lock()
	s.buf = append(s.buf, rec)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Events returns the delivery channel. It is closed when the stream is
// closed; records buffered at that point are discarded, matching the
// no-replay contract for disconnecting subscribers.
func (s *Stream) Events() <-chan ChangeRecord {
	return s.out
}

// Close ends delivery. Idempotent and safe for concurrent callers.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Stream) matches(path string) bool {
	return len(path) >= len(s.prefix) && path[:len(s.prefix)] == s.prefix
}

func (s *Stream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		pending := s.buf
		s.buf = nil
		s.mu.Unlock()

		for _, rec := range pending {
			select {
			case s.out <- rec:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
