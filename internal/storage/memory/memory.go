// Package memory implements the storage contract entirely in process.
//
// It exists for tests and local development: the mutation semantics mirror
// the Postgres stored procedures exactly (via the shared jsonval functions),
// and change records fan out through the same storage.Stream pipeline, so
// behavior observed against this backend holds for the real engine.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/firegres/firegres/internal/jsonpath"
	"github.com/firegres/firegres/internal/jsonval"
	"github.com/firegres/firegres/internal/pushid"
	"github.com/firegres/firegres/internal/storage"
)

// Store is an in-memory storage.Storage. A single mutex serializes all
// access; publishes happen under the lock so every subscriber observes
// mutations in commit order.
type Store struct {
	mu      sync.Mutex
	closed  bool
	dbs     map[string]*database
	handles map[string]*storage.Database
	subs    map[string]map[*subscription]struct{}
}

type database struct {
	// rows maps root key to the wrapped row value {root_key: subtree}.
	rows    map[string]any
	created time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		dbs:     make(map[string]*database),
		handles: make(map[string]*storage.Database),
		subs:    make(map[string]map[*subscription]struct{}),
	}
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) CreateDatabase(ctx context.Context, name string) (*storage.Database, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	if _, ok := s.dbs[name]; ok {
		return nil, storage.ErrAlreadyExists
	}
	s.dbs[name] = &database{rows: make(map[string]any), created: time.Now()}
	handle := storage.NewDatabase(name, s)
	s.handles[name] = handle
	return handle, nil
}

func (s *Store) DeleteDatabase(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.dbs[name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.dbs, name)
	delete(s.handles, name)
	return nil
}

func (s *Store) GetDatabase(ctx context.Context, name string) (*storage.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	if h, ok := s.handles[name]; ok {
		return h, nil
	}
	if _, ok := s.dbs[name]; !ok {
		return nil, nil
	}
	h := storage.NewDatabase(name, s)
	s.handles[name] = h
	return h, nil
}

func (s *Store) ListDatabases(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Get(ctx context.Context, name, path string) (any, error) {
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidPath, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	db, ok := s.dbs[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if p == nil {
		return mergeRows(db.rows)
	}
	row, ok := db.rows[p.RootKey()]
	if !ok {
		return nil, nil
	}
	return jsonval.Extract(row, p.Segments()), nil
}

// mergeRows builds the whole document from the per-root-key rows. The write
// path makes top-level keys disjoint structurally; the invariant is still
// asserted here.
func mergeRows(rows map[string]any) (any, error) {
	doc := make(map[string]any, len(rows))
	for rootKey, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok || len(obj) != 1 {
			return nil, fmt.Errorf("row %q is not a single-key object", rootKey)
		}
		for k, v := range obj {
			if k != rootKey {
				return nil, fmt.Errorf("row %q wraps key %q", rootKey, k)
			}
			if _, dup := doc[k]; dup {
				return nil, fmt.Errorf("duplicate top-level key %q", k)
			}
			doc[k] = v
		}
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, name, path string, value any) (any, error) {
	if err := s.mutate(name, path, value, storage.EventPut); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Patch(ctx context.Context, name, path string, value any) (any, error) {
	if err := s.mutate(name, path, value, storage.EventPatch); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Post(ctx context.Context, name, path string, value any) (map[string]any, error) {
	id, err := pushid.Next()
	if err != nil {
		return nil, fmt.Errorf("generating push id: %w", err)
	}
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidPath, err)
	}
	if p == nil {
		return nil, storage.ErrInvalidPath
	}
	if err := s.mutate(name, p.Join(id).String(), value, storage.EventPut); err != nil {
		return nil, err
	}
	return map[string]any{id: value}, nil
}

func (s *Store) Delete(ctx context.Context, name, path string) (bool, error) {
	if err := s.mutate(name, path, nil, storage.EventPut); err != nil {
		return false, err
	}
	return true, nil
}

// mutate applies a deep-set or deep-merge and publishes the change record to
// every subscriber of the database, all under the store lock: the in-memory
// equivalent of the engine's single-transaction update-and-notify.
func (s *Store) mutate(name, path string, value any, kind storage.EventKind) error {
	p, err := jsonpath.Parse(path)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidPath, err)
	}
	if p == nil {
		return storage.ErrInvalidPath
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	db, ok := s.dbs[name]
	if !ok {
		return storage.ErrNotFound
	}

	rootKey := p.RootKey()
	row, exists := db.rows[rootKey]
	switch {
	case !exists:
		db.rows[rootKey] = p.Skeleton(value)
	case kind == storage.EventPatch:
		db.rows[rootKey] = jsonval.DeepMerge(row, p.Skeleton(value))
	default:
		db.rows[rootKey] = jsonval.DeepSet(row, p.Segments(), value)
	}

	rec := storage.ChangeRecord{Event: kind, Path: p.String(), Data: value}
	for sub := range s.subs[name] {
		sub.stream.Publish(rec)
	}
	return nil
}

func (s *Store) Notifier(ctx context.Context, name, prefix string) (storage.Notifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	if _, ok := s.dbs[name]; !ok {
		return nil, storage.ErrNotFound
	}
	sub := &subscription{
		stream: storage.NewStream(prefix),
		store:  s,
		db:     name,
	}
	if s.subs[name] == nil {
		s.subs[name] = make(map[*subscription]struct{})
	}
	s.subs[name][sub] = struct{}{}
	return sub, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*subscription
	for _, subs := range s.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	s.subs = make(map[string]map[*subscription]struct{})
	s.mu.Unlock()

	for _, sub := range all {
		sub.stream.Close()
	}
	return nil
}

// subscription adapts a storage.Stream to the Notifier interface and
// unregisters itself from the store on cleanup.
type subscription struct {
	stream *storage.Stream
	store  *Store
	db     string
	once   sync.Once
}

func (sub *subscription) Events() <-chan storage.ChangeRecord {
	return sub.stream.Events()
}

func (sub *subscription) Cleanup() error {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		if subs, ok := sub.store.subs[sub.db]; ok {
			delete(subs, sub)
		}
		sub.store.mu.Unlock()
		sub.stream.Close()
	})
	return nil
}
