// internal/store/store.go
//
// Gridkit – Record store.
//
// Context
// -------
// Grid rows are stored as JSON documents in one table:
//
//	records (id BIGINT AUTO_INCREMENT PK, data JSON, created_at, updated_at)
//
// The dialog machine talks to the store through dialog.Handlers; the HTTP
// surface uses Get to load the active record before opening an edit, view,
// or delete dialog.
//
// Workflow
// --------
//   - Create marshals the payload minus its identity keys and returns the row
//     with the new id.
//   - Update applies the payload as a JSON merge patch over the stored
//     document inside a transaction, so fields the dialog did not submit
//     survive.  A null value removes the key.
//   - Delete reports ErrNotFound when no row matched.
//
// Notes
// -----
//   - Placeholders are MySQL style (`?`).
//   - The table name is checked once in New; queries interpolate it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/gridkit/internal/dialog"
	"github.com/yanizio/gridkit/internal/logger"
)

// DefaultTable is used when New receives an empty table name.
const DefaultTable = "records"

var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert or update hits a unique key.
	ErrDuplicate = errors.New("record already exists")
	// ErrBadID is returned for identities that are not positive integers.
	ErrBadID = errors.New("invalid record id")
)

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store persists dialog records.  Safe for concurrent use.
type Store struct {
	db    *sqlx.DB
	table string
}

// New returns a Store over db using table.
func New(db *sqlx.DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableRe.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}
	return &Store{db: db, table: table}, nil
}

type row struct {
	ID   int64  `db:"id"`
	Data []byte `db:"data"`
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Get loads one record.  The returned record carries its id under "id".
func (s *Store) Get(ctx context.Context, id any) (dialog.Record, error) {
	n, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var r row
	q := fmt.Sprintf(`SELECT id, data FROM %s WHERE id = ?`, s.table)
	if err := s.db.GetContext(ctx, &r, q, n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get %d: %w", n, err)
	}
	return decode(r.ID, r.Data)
}

// Create inserts data and returns the stored record.
func (s *Store) Create(ctx context.Context, data dialog.Record) (dialog.Record, error) {
	doc, err := encode(data)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`INSERT INTO %s (data) VALUES (?)`, s.table)
	res, err := s.db.ExecContext(ctx, q, string(doc))
	if err != nil {
		return nil, wrapWrite("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create: %w", err)
	}

	logger.FromContext(ctx).Debugw("record created", "table", s.table, "id", id)
	return decode(id, doc)
}

// Update merges patch into the stored document and returns the result.
func (s *Store) Update(ctx context.Context, id any, patch dialog.Record) (dialog.Record, error) {
	n, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	delta, err := encode(patch)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: update %d: %w", n, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var current []byte
	q := fmt.Sprintf(`SELECT data FROM %s WHERE id = ? FOR UPDATE`, s.table)
	if err := tx.GetContext(ctx, &current, q, n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: update %d: %w", n, err)
	}

	merged, err := jsonpatch.MergePatch(current, delta)
	if err != nil {
		return nil, fmt.Errorf("store: merge %d: %w", n, err)
	}

	q = fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, s.table)
	if _, err := tx.ExecContext(ctx, q, string(merged), n); err != nil {
		return nil, wrapWrite("update", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: update %d: %w", n, err)
	}

	logger.FromContext(ctx).Debugw("record updated", "table", s.table, "id", n)
	return decode(n, merged)
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, id any) error {
	n, err := ParseID(id)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table)
	res, err := s.db.ExecContext(ctx, q, n)
	if err != nil {
		return fmt.Errorf("store: delete %d: %w", n, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	logger.FromContext(ctx).Debugw("record deleted", "table", s.table, "id", n)
	return nil
}

// -----------------------------------------------------------------------------
// Dialog wiring
// -----------------------------------------------------------------------------

// Handlers adapts the store to the dialog machine.  onSaved, when non-nil,
// receives the stored record after a successful create or update.
func (s *Store) Handlers(onSaved func(dialog.Record)) dialog.Handlers {
	saved := func(r dialog.Record) {
		if onSaved != nil {
			onSaved(r)
		}
	}
	return dialog.Handlers{
		OnCreate: func(ctx context.Context, data dialog.Record) (bool, error) {
			r, err := s.Create(ctx, data)
			if err != nil {
				return false, err
			}
			saved(r)
			return true, nil
		},
		OnUpdate: func(ctx context.Context, id any, data dialog.Record) (bool, error) {
			r, err := s.Update(ctx, id, data)
			if err != nil {
				return false, err
			}
			saved(r)
			return true, nil
		},
		OnDelete: func(ctx context.Context, id any) (bool, error) {
			if err := s.Delete(ctx, id); err != nil {
				return false, err
			}
			return true, nil
		},
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// ParseID accepts the identity shapes a record or URL may carry.
func ParseID(id any) (int64, error) {
	var n int64
	switch v := id.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint64:
		n = int64(v)
	case float64:
		if v != float64(int64(v)) {
			return 0, ErrBadID
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, ErrBadID
		}
		n = i
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, ErrBadID
		}
		n = i
	default:
		return 0, ErrBadID
	}
	if n <= 0 {
		return 0, ErrBadID
	}
	return n, nil
}

// encode marshals r without its identity keys; the id lives in its column.
func encode(r dialog.Record) ([]byte, error) {
	body := make(map[string]any, len(r))
	for k, v := range r {
		if k == "id" || k == "_id" {
			continue
		}
		body[k] = v
	}
	doc, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return doc, nil
}

func decode(id int64, doc []byte) (dialog.Record, error) {
	out := dialog.Record{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &out); err != nil {
			return nil, fmt.Errorf("store: decode %d: %w", id, err)
		}
	}
	out["id"] = id
	return out, nil
}

// wrapWrite maps MySQL duplicate-key errors to ErrDuplicate.
func wrapWrite(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("store: %s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
