package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/firegres/firegres/internal/storage"
)

const (
	listenerMinReconnect = 50 * time.Millisecond
	listenerMaxReconnect = 10 * time.Second
	// listenerPingInterval bounds how long a dead connection goes unnoticed
	// while no notifications arrive.
	listenerPingInterval = 90 * time.Second
)

// notifyPayload is the wire form published by the stored procedures: the
// path travels as a segment array and is joined before delivery.
type notifyPayload struct {
	Event string   `json:"event"`
	Path  []string `json:"path"`
	Data  any      `json:"data"`
}

// notifier is one subscription: a dedicated pq.Listener connection, a
// background goroutine draining its notifications, and a storage.Stream
// applying the prefix filter and buffering toward the consumer.
type notifier struct {
	store   *Store
	channel string
	stream  *storage.Stream
	pql     *pq.Listener

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (s *Store) Notifier(ctx context.Context, name, prefix string) (storage.Notifier, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	exists, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Each subscription owns its connection so a blocked LISTEN can never
	// stall the shared pool or another subscriber.
	pql := pq.NewListener(s.connStr, listenerMinReconnect, listenerMaxReconnect, nil)
	if err := pql.Listen(name); err != nil {
		_ = pql.Close()
		return nil, fmt.Errorf("listening on channel %q: %w", name, err)
	}

	n := &notifier{
		store:   s,
		channel: name,
		stream:  storage.NewStream(prefix),
		pql:     pql,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = pql.Close()
		n.stream.Close()
		return nil, storage.ErrClosed
	}
	s.notifiers[n] = struct{}{}
	s.mu.Unlock()

	n.wg.Add(1)
	go n.run()
	return n, nil
}

// run drains notifications into the stream until cancelled or the listener
// dies. A dying connection ends the subscription; the client reconnects for
// a fresh one rather than resuming this stream.
func (n *notifier) run() {
	defer n.wg.Done()
	defer n.stream.Close()

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-n.pql.Notify:
			if !ok {
				return
			}
			if msg == nil {
				// Reconnect marker; notifications sent while the connection
				// was down are gone, consistent with no-replay semantics.
				continue
			}
			var payload notifyPayload
			if err := json.Unmarshal([]byte(msg.Extra), &payload); err != nil {
				log.Printf("notifier: dropping malformed payload on %q: %v", n.channel, err)
				continue
			}
			n.stream.Publish(storage.ChangeRecord{
				Event: storage.EventKind(payload.Event),
				Path:  strings.Join(payload.Path, "/"),
				Data:  payload.Data,
			})
		case <-ping.C:
			if err := n.pql.Ping(); err != nil {
				log.Printf("notifier: listener on %q lost: %v", n.channel, err)
				return
			}
		case <-n.done:
			return
		}
	}
}

func (n *notifier) Events() <-chan storage.ChangeRecord {
	return n.stream.Events()
}

// Cleanup cancels the subscription, joins the listener goroutine, and closes
// the dedicated connection. Safe to call from multiple goroutines.
func (n *notifier) Cleanup() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		n.wg.Wait()
		err = n.pql.Close()

		n.store.mu.Lock()
		delete(n.store.notifiers, n)
		n.store.mu.Unlock()
	})
	return err
}
