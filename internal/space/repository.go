package space

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitat-home/habitat-core/internal/property"
)

// Repository defines persistence for the space/source graph.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// ListSpaces retrieves all spaces in creation order.
	ListSpaces(ctx context.Context) ([]Space, error)

	// GetSpace retrieves a space by id.
	// Returns ErrSpaceNotFound if the space does not exist.
	GetSpace(ctx context.Context, id string) (*Space, error)

	// CreateSpace inserts a new space.
	// Returns ErrSpaceExists on id collision.
	CreateSpace(ctx context.Context, s *Space) error

	// UpdateSpace modifies an existing space.
	UpdateSpace(ctx context.Context, s *Space) error

	// DeleteSpace removes a space. Deletion cascades to its sources.
	DeleteSpace(ctx context.Context, id string) error

	// ListSources retrieves all sources in creation order. The order is
	// load-bearing: it becomes registry insertion order.
	ListSources(ctx context.Context) ([]Source, error)

	// GetSource retrieves a source by id.
	// Returns ErrSourceNotFound if the source does not exist.
	GetSource(ctx context.Context, id string) (*Source, error)

	// CreateSource inserts a new source.
	// Returns ErrSourceExists when the id or (adapter_id, entity_id)
	// route is already taken.
	CreateSource(ctx context.Context, s *Source) error

	// DeleteSource removes a source and its property assignments.
	DeleteSource(ctx context.Context, id string) error

	// ListSourceProperties retrieves all property assignments.
	ListSourceProperties(ctx context.Context) ([]SourceProperty, error)

	// UpsertSourceProperty creates or replaces one property assignment,
	// keyed on (source_id, property).
	UpsertSourceProperty(ctx context.Context, p *SourceProperty) error

	// DeleteSourceProperty removes one property assignment.
	DeleteSourceProperty(ctx context.Context, sourceID string, prop property.Name) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListSpaces retrieves all spaces in creation order.
func (r *SQLiteRepository) ListSpaces(ctx context.Context) ([]Space, error) {
	query := `
		SELECT id, display_name, slug, floor, created_at, updated_at
		FROM spaces
		ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying spaces: %w", err)
	}
	defer rows.Close()

	var spaces []Space
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning space: %w", err)
		}
		spaces = append(spaces, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spaces: %w", err)
	}
	return spaces, nil
}

// GetSpace retrieves a space by id.
func (r *SQLiteRepository) GetSpace(ctx context.Context, id string) (*Space, error) {
	query := `
		SELECT id, display_name, slug, floor, created_at, updated_at
		FROM spaces
		WHERE id = ?`

	s, err := scanSpace(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpaceNotFound
		}
		return nil, fmt.Errorf("querying space by id: %w", err)
	}
	return s, nil
}

// CreateSpace inserts a new space.
func (r *SQLiteRepository) CreateSpace(ctx context.Context, s *Space) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO spaces (id, display_name, slug, floor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Name,
		s.Slug,
		nullableString(s.Floor),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSpaceExists
		}
		return fmt.Errorf("inserting space: %w", err)
	}
	return nil
}

// UpdateSpace modifies an existing space.
func (r *SQLiteRepository) UpdateSpace(ctx context.Context, s *Space) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE spaces
		SET display_name = ?, slug = ?, floor = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.Name,
		s.Slug,
		nullableString(s.Floor),
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating space: %w", err)
	}
	return requireRow(result, ErrSpaceNotFound)
}

// DeleteSpace removes a space. Sources cascade via foreign key.
func (r *SQLiteRepository) DeleteSpace(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM spaces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting space: %w", err)
	}
	return requireRow(result, ErrSpaceNotFound)
}

// ListSources retrieves all sources in creation order.
func (r *SQLiteRepository) ListSources(ctx context.Context) ([]Source, error) {
	query := `
		SELECT id, space_id, display_name, adapter_id, entity_id, created_at, updated_at
		FROM sources
		ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// GetSource retrieves a source by id.
func (r *SQLiteRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	query := `
		SELECT id, space_id, display_name, adapter_id, entity_id, created_at, updated_at
		FROM sources
		WHERE id = ?`

	s, err := scanSource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("querying source by id: %w", err)
	}
	return s, nil
}

// CreateSource inserts a new source.
func (r *SQLiteRepository) CreateSource(ctx context.Context, s *Source) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO sources (id, space_id, display_name, adapter_id, entity_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.SpaceID,
		s.Name,
		s.AdapterID,
		s.EntityID,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSourceExists
		}
		return fmt.Errorf("inserting source: %w", err)
	}
	return nil
}

// DeleteSource removes a source. Property assignments cascade.
func (r *SQLiteRepository) DeleteSource(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	return requireRow(result, ErrSourceNotFound)
}

// ListSourceProperties retrieves all property assignments in
// assignment order.
func (r *SQLiteRepository) ListSourceProperties(ctx context.Context) ([]SourceProperty, error) {
	query := `
		SELECT source_id, property, role, mounting, features, command_hints
		FROM source_properties
		ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying source properties: %w", err)
	}
	defer rows.Close()

	var props []SourceProperty
	for rows.Next() {
		p, err := scanSourceProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source property: %w", err)
		}
		props = append(props, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source properties: %w", err)
	}
	return props, nil
}

// UpsertSourceProperty creates or replaces one property assignment.
func (r *SQLiteRepository) UpsertSourceProperty(ctx context.Context, p *SourceProperty) error {
	featuresJSON, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshalling features: %w", err)
	}

	var hintsJSON []byte
	if p.CommandHints != nil {
		hintsJSON, err = json.Marshal(p.CommandHints)
		if err != nil {
			return fmt.Errorf("marshalling command hints: %w", err)
		}
	}

	query := `
		INSERT INTO source_properties (source_id, property, role, mounting, features, command_hints)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, property) DO UPDATE SET
			role = excluded.role,
			mounting = excluded.mounting,
			features = excluded.features,
			command_hints = excluded.command_hints`

	_, err = r.db.ExecContext(ctx, query,
		p.SourceID,
		string(p.Property),
		string(p.Role),
		nullableString(p.Mounting),
		string(featuresJSON),
		nullableBytes(hintsJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting source property: %w", err)
	}
	return nil
}

// DeleteSourceProperty removes one property assignment.
func (r *SQLiteRepository) DeleteSourceProperty(ctx context.Context, sourceID string, prop property.Name) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM source_properties WHERE source_id = ? AND property = ?",
		sourceID, string(prop),
	)
	if err != nil {
		return fmt.Errorf("deleting source property: %w", err)
	}
	return requireRow(result, ErrSourceNotFound)
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(scanner rowScanner) (*Space, error) {
	var s Space
	var floor sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(&s.ID, &s.Name, &s.Slug, &floor, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if floor.Valid {
		s.Floor = &floor.String
	}

	var err error
	s.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func scanSource(scanner rowScanner) (*Source, error) {
	var s Source
	var createdAt, updatedAt string

	if err := scanner.Scan(&s.ID, &s.SpaceID, &s.Name, &s.AdapterID, &s.EntityID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	s.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func scanSourceProperty(scanner rowScanner) (*SourceProperty, error) {
	var p SourceProperty
	var prop, role string
	var mounting sql.NullString
	var featuresJSON string
	var hintsJSON sql.NullString

	if err := scanner.Scan(&p.SourceID, &prop, &role, &mounting, &featuresJSON, &hintsJSON); err != nil {
		return nil, err
	}
	p.Property = property.Name(prop)
	p.Role = property.Role(role)
	if mounting.Valid {
		p.Mounting = &mounting.String
	}

	if err := json.Unmarshal([]byte(featuresJSON), &p.Features); err != nil {
		return nil, fmt.Errorf("unmarshalling features: %w", err)
	}
	if hintsJSON.Valid && hintsJSON.String != "" {
		if err := json.Unmarshal([]byte(hintsJSON.String), &p.CommandHints); err != nil {
			return nil, fmt.Errorf("unmarshalling command hints: %w", err)
		}
	}
	return &p, nil
}

// requireRow converts a zero-rows-affected result into notFound.
func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableBytes returns a sql.NullString for optional byte slices.
func nullableBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// isUniqueConstraintError checks for a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
