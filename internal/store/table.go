package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fintrackapp/fintrack/internal/model"
)

// Table is a handle onto one entity collection. The sync engine and the UI
// treat it as a capability set: put, get, delete, clear, list.
type Table struct {
	s    *Store
	name model.Table
}

// Table returns a handle for the named entity collection.
func (s *Store) Table(name model.Table) Table {
	return Table{s: s, name: name}
}

// Name returns the table this handle operates on.
func (t Table) Name() model.Table {
	return t.name
}

// Put inserts or replaces a record by local ID.
func (t Table) Put(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}
	if !json.Valid(rec.Data) {
		return fmt.Errorf("record %s: data is not valid JSON", rec.ID)
	}

	query := `
	INSERT INTO records (tbl, id, cloud_id, updated_at, data)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(tbl, id) DO UPDATE SET
		cloud_id = excluded.cloud_id,
		updated_at = excluded.updated_at,
		data = excluded.data
	`

	_, err := t.s.conn.ExecContext(ctx, query,
		string(t.name), rec.ID, rec.CloudID,
		rec.UpdatedAt.UTC().Format(timeLayout), string(rec.Data))
	if err != nil {
		return fmt.Errorf("failed to put record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given local ID, or ErrNotFound.
func (t Table) Get(ctx context.Context, id string) (*model.Record, error) {
	row := t.s.conn.QueryRowContext(ctx,
		"SELECT id, cloud_id, updated_at, data FROM records WHERE tbl = ? AND id = ?",
		string(t.name), id)
	return scanRecord(row)
}

// GetByCloudID returns the record mapped to the given remote identifier,
// or ErrNotFound. The unique index guarantees at most one match.
func (t Table) GetByCloudID(ctx context.Context, cloudID string) (*model.Record, error) {
	row := t.s.conn.QueryRowContext(ctx,
		"SELECT id, cloud_id, updated_at, data FROM records WHERE tbl = ? AND cloud_id = ?",
		string(t.name), cloudID)
	return scanRecord(row)
}

// SetCloudID attaches the remote identifier to a record after its first
// successful push. The local fields and timestamp are left untouched.
func (t Table) SetCloudID(ctx context.Context, id, cloudID string) error {
	res, err := t.s.conn.ExecContext(ctx,
		"UPDATE records SET cloud_id = ? WHERE tbl = ? AND id = ?",
		cloudID, string(t.name), id)
	if err != nil {
		return fmt.Errorf("failed to set cloud_id on %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cloud_id update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record by local ID. Deleting a missing record is not an
// error (idempotent).
func (t Table) Delete(ctx context.Context, id string) error {
	_, err := t.s.conn.ExecContext(ctx,
		"DELETE FROM records WHERE tbl = ? AND id = ?", string(t.name), id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// Clear removes every record in this table.
func (t Table) Clear(ctx context.Context) error {
	_, err := t.s.conn.ExecContext(ctx,
		"DELETE FROM records WHERE tbl = ?", string(t.name))
	if err != nil {
		return fmt.Errorf("failed to clear table %s: %w", t.name, err)
	}
	return nil
}

// List returns all records in the table, most recently updated first.
func (t Table) List(ctx context.Context) ([]*model.Record, error) {
	rows, err := t.s.conn.QueryContext(ctx,
		"SELECT id, cloud_id, updated_at, data FROM records WHERE tbl = ? ORDER BY updated_at DESC",
		string(t.name))
	if err != nil {
		return nil, fmt.Errorf("failed to list table %s: %w", t.name, err)
	}
	defer rows.Close()

	var recs []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan table %s: %w", t.name, err)
	}
	return recs, nil
}

// Count returns the number of records in the table.
func (t Table) Count(ctx context.Context) (int, error) {
	var n int
	err := t.s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE tbl = ?", string(t.name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count table %s: %w", t.name, err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var (
		rec       model.Record
		cloudID   sql.NullString
		updatedAt string
		data      string
	)

	err := row.Scan(&rec.ID, &cloudID, &updatedAt, &data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.CloudID = cloudID.String
	rec.Data = json.RawMessage(data)

	rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at %q: %w", updatedAt, err)
	}

	return &rec, nil
}
