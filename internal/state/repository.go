package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/habitat-home/habitat-core/internal/property"
)

// Repository defines persistence for cached state and collection items.
type Repository interface {
	// UpsertState writes the last-known state for a key. Exactly one row
	// exists per (source_id, property); the last write wins.
	UpsertState(ctx context.Context, r *Record) error

	// GetState retrieves the cached state for a key.
	// Returns ErrStateNotFound when nothing is cached.
	GetState(ctx context.Context, sourceID string, prop property.Name) (*Record, error)

	// ListStates retrieves all cached state records.
	ListStates(ctx context.Context) ([]Record, error)

	// UpsertItems writes a batch of collection items, keyed on
	// (source_id, property, item_id), last write wins.
	UpsertItems(ctx context.Context, items []CollectionItem) error

	// ListItems retrieves cached items for a key, optionally bounded by
	// a time range on starts_at. Items without a start time are included
	// only when no range is given.
	ListItems(ctx context.Context, sourceID string, prop property.Name, from, to *time.Time) ([]CollectionItem, error)

	// PruneItems removes items for a key not refreshed since the cutoff.
	// Returns the number of rows removed.
	PruneItems(ctx context.Context, sourceID string, prop property.Name, fetchedBefore time.Time) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// UpsertState writes the last-known state for a key.
func (r *SQLiteRepository) UpsertState(ctx context.Context, rec *Record) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	var prevJSON []byte
	if rec.PreviousState != nil {
		prevJSON, err = json.Marshal(rec.PreviousState)
		if err != nil {
			return fmt.Errorf("marshalling previous state: %w", err)
		}
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO source_state (source_id, property, state, previous_state, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, property) DO UPDATE SET
			state = excluded.state,
			previous_state = excluded.previous_state,
			timestamp = excluded.timestamp`

	_, err = r.db.ExecContext(ctx, query,
		rec.SourceID,
		string(rec.Property),
		string(stateJSON),
		nullableBytes(prevJSON),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting state: %w", err)
	}
	return nil
}

// GetState retrieves the cached state for a key.
func (r *SQLiteRepository) GetState(ctx context.Context, sourceID string, prop property.Name) (*Record, error) {
	query := `
		SELECT source_id, property, state, previous_state, timestamp
		FROM source_state
		WHERE source_id = ? AND property = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, sourceID, string(prop)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("querying state: %w", err)
	}
	return rec, nil
}

// ListStates retrieves all cached state records.
func (r *SQLiteRepository) ListStates(ctx context.Context) ([]Record, error) {
	query := `
		SELECT source_id, property, state, previous_state, timestamp
		FROM source_state
		ORDER BY source_id, property`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return records, nil
}

// UpsertItems writes a batch of collection items in one transaction.
func (r *SQLiteRepository) UpsertItems(ctx context.Context, items []CollectionItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	query := `
		INSERT INTO source_collection_items
			(source_id, property, item_id, data, starts_at, ends_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, property, item_id) DO UPDATE SET
			data = excluded.data,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			fetched_at = excluded.fetched_at`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		item := &items[i]
		dataJSON, err := json.Marshal(item.Data)
		if err != nil {
			return fmt.Errorf("marshalling item %s: %w", item.ItemID, err)
		}
		if item.FetchedAt.IsZero() {
			item.FetchedAt = time.Now().UTC()
		}

		_, err = stmt.ExecContext(ctx,
			item.SourceID,
			string(item.Property),
			item.ItemID,
			string(dataJSON),
			nullableTime(item.StartsAt),
			nullableTime(item.EndsAt),
			item.FetchedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("upserting item %s: %w", item.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing items: %w", err)
	}
	return nil
}

// ListItems retrieves cached items for a key.
func (r *SQLiteRepository) ListItems(ctx context.Context, sourceID string, prop property.Name, from, to *time.Time) ([]CollectionItem, error) {
	query := `
		SELECT source_id, property, item_id, data, starts_at, ends_at, fetched_at
		FROM source_collection_items
		WHERE source_id = ? AND property = ?`
	args := []any{sourceID, string(prop)}

	if from != nil {
		query += " AND starts_at >= ?"
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if to != nil {
		query += " AND starts_at <= ?"
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY COALESCE(starts_at, fetched_at), item_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []CollectionItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

// PruneItems removes items for a key not refreshed since the cutoff.
func (r *SQLiteRepository) PruneItems(ctx context.Context, sourceID string, prop property.Name, fetchedBefore time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM source_collection_items WHERE source_id = ? AND property = ? AND fetched_at < ?",
		sourceID, string(prop), fetchedBefore.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning items: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var prop, stateJSON, timestamp string
	var prevJSON sql.NullString

	if err := scanner.Scan(&rec.SourceID, &prop, &stateJSON, &prevJSON, &timestamp); err != nil {
		return nil, err
	}
	rec.Property = property.Name(prop)

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if prevJSON.Valid && prevJSON.String != "" {
		if err := json.Unmarshal([]byte(prevJSON.String), &rec.PreviousState); err != nil {
			return nil, fmt.Errorf("unmarshalling previous state: %w", err)
		}
	}

	var err error
	rec.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &rec, nil
}

func scanItem(scanner rowScanner) (*CollectionItem, error) {
	var item CollectionItem
	var prop, dataJSON, fetchedAt string
	var startsAt, endsAt sql.NullString

	if err := scanner.Scan(&item.SourceID, &prop, &item.ItemID, &dataJSON, &startsAt, &endsAt, &fetchedAt); err != nil {
		return nil, err
	}
	item.Property = property.Name(prop)

	if err := json.Unmarshal([]byte(dataJSON), &item.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling item data: %w", err)
	}

	if startsAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startsAt.String)
		if err == nil {
			item.StartsAt = &t
		}
	}
	if endsAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endsAt.String)
		if err == nil {
			item.EndsAt = &t
		}
	}

	var err error
	item.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing fetched_at: %w", err)
	}
	return &item, nil
}

// nullableTime returns a sql.NullString for optional time pointers.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// nullableBytes returns a sql.NullString for optional byte slices.
func nullableBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
