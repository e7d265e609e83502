package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/firegres/firegres/internal/jsonpath"
	"github.com/firegres/firegres/internal/pushid"
	"github.com/firegres/firegres/internal/storage"
)

func (s *Store) Get(ctx context.Context, name, path string) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidPath, err)
	}
	if p == nil {
		return s.getAll(ctx, name)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data #> $2 FROM %s WHERE root_key = $1`, pq.QuoteIdentifier(name)),
		p.RootKey(), pq.Array(p.Segments())).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dataErr("get", name, err)
	}
	if raw == nil {
		// Row exists but the sub-path does not.
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding value at %q: %w", path, err)
	}
	return v, nil
}

// getAll returns the merged union of every root-key row. Top-level keys are
// disjoint by construction of the write path; the invariant is asserted
// while merging.
func (s *Store) getAll(ctx context.Context, name string) (any, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT root_key, data FROM %s`, pq.QuoteIdentifier(name)))
	if err != nil {
		return nil, dataErr("get", name, err)
	}
	defer rows.Close()

	doc := make(map[string]any)
	for rows.Next() {
		var rootKey string
		var raw []byte
		if err := rows.Scan(&rootKey, &raw); err != nil {
			return nil, fmt.Errorf("scanning row of %q: %w", name, err)
		}
		var row any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decoding row %q of %q: %w", rootKey, name, err)
		}
		obj, ok := row.(map[string]any)
		if !ok || len(obj) != 1 {
			return nil, fmt.Errorf("row %q of %q is not a single-key object", rootKey, name)
		}
		for k, v := range obj {
			if k != rootKey {
				return nil, fmt.Errorf("row %q of %q wraps key %q", rootKey, name, k)
			}
			if _, dup := doc[k]; dup {
				return nil, fmt.Errorf("duplicate top-level key %q in %q", k, name)
			}
			doc[k] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr("get", name, err)
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, name, path string, value any) (any, error) {
	if err := s.mutate(ctx, "upsert_json_data_notify", name, path, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Patch(ctx context.Context, name, path string, value any) (any, error) {
	if err := s.mutate(ctx, "patch_json_data_notify", name, path, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Post(ctx context.Context, name, path string, value any) (map[string]any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidPath, err)
	}
	if p == nil {
		return nil, storage.ErrInvalidPath
	}
	id, err := pushid.Next()
	if err != nil {
		return nil, fmt.Errorf("generating push id: %w", err)
	}
	if err := s.mutate(ctx, "upsert_json_data_notify", name, p.Join(id).String(), value); err != nil {
		return nil, err
	}
	return map[string]any{id: value}, nil
}

func (s *Store) Delete(ctx context.Context, name, path string) (bool, error) {
	if err := s.mutate(ctx, "upsert_json_data_notify", name, path, nil); err != nil {
		return false, err
	}
	return true, nil
}

// mutate invokes one of the update-and-notify stored procedures. Each call
// is a single transaction server-side: the row write and the pg_notify
// commit together, and listeners subscribed before the commit receive the
// record in commit order.
func (s *Store) mutate(ctx context.Context, proc, name, path string, value any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	p, err := jsonpath.Parse(path)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidPath, err)
	}
	if p == nil {
		return storage.ErrInvalidPath
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for %q: %w", path, err)
	}
	skeletonJSON, err := json.Marshal(p.Skeleton(value))
	if err != nil {
		return fmt.Errorf("encoding skeleton for %q: %w", path, err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`SELECT %s($1, $2, $3, $4, $5)`, proc),
		name, p.RootKey(), string(skeletonJSON), pq.Array(p.Segments()), string(valueJSON))
	if err != nil {
		return dataErr("mutate", name, err)
	}
	return nil
}
