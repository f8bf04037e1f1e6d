package supervisor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository persists adapter instance configurations.
type Repository interface {
	ListAdapters(ctx context.Context) ([]AdapterConfig, error)
	GetAdapter(ctx context.Context, id string) (*AdapterConfig, error)
	CreateAdapter(ctx context.Context, cfg *AdapterConfig) error
	UpdateAdapter(ctx context.Context, cfg *AdapterConfig) error
	DeleteAdapter(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on top of the adapters table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListAdapters returns all configured adapters in creation order.
func (r *SQLiteRepository) ListAdapters(ctx context.Context) ([]AdapterConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, display_name, config, created_at, updated_at
		FROM adapters
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying adapters: %w", err)
	}
	defer rows.Close()

	var configs []AdapterConfig
	for rows.Next() {
		cfg, err := scanAdapter(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// GetAdapter returns one adapter config by id.
func (r *SQLiteRepository) GetAdapter(ctx context.Context, id string) (*AdapterConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, display_name, config, created_at, updated_at
		FROM adapters
		WHERE id = ?
	`, id)

	cfg, err := scanAdapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdapterNotFound
	}
	return cfg, err
}

// CreateAdapter inserts a new adapter config.
func (r *SQLiteRepository) CreateAdapter(ctx context.Context, cfg *AdapterConfig) error {
	configJSON, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("encoding adapter config: %w", err)
	}

	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO adapters (id, type, display_name, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cfg.ID, cfg.Type, cfg.DisplayName, string(configJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAdapterExists
		}
		return fmt.Errorf("inserting adapter: %w", err)
	}
	return nil
}

// UpdateAdapter replaces an existing adapter config, last write wins.
func (r *SQLiteRepository) UpdateAdapter(ctx context.Context, cfg *AdapterConfig) error {
	configJSON, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("encoding adapter config: %w", err)
	}

	cfg.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE adapters
		SET type = ?, display_name = ?, config = ?, updated_at = ?
		WHERE id = ?
	`, cfg.Type, cfg.DisplayName, string(configJSON),
		cfg.UpdatedAt.Format(time.RFC3339), cfg.ID)
	if err != nil {
		return fmt.Errorf("updating adapter: %w", err)
	}
	return requireRow(result, ErrAdapterNotFound)
}

// DeleteAdapter removes an adapter config.
func (r *SQLiteRepository) DeleteAdapter(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM adapters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting adapter: %w", err)
	}
	return requireRow(result, ErrAdapterNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdapter(scanner rowScanner) (*AdapterConfig, error) {
	var cfg AdapterConfig
	var configJSON sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(&cfg.ID, &cfg.Type, &cfg.DisplayName, &configJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &cfg.Config); err != nil {
			return nil, fmt.Errorf("decoding adapter config for %s: %w", cfg.ID, err)
		}
	}
	if cfg.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", cfg.ID, err)
	}
	if cfg.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

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

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
