// Package dataset manages uploaded tabular files: a SQLite-backed
// registry of dataset metadata and the minimal schema pointer handed to
// the model.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/datapilot-ai/datapilot/internal/domain"
	_ "modernc.org/sqlite"
)

// Registry persists dataset metadata. Dataset files themselves live on
// disk; only their descriptions are stored here.
type Registry struct {
	db *sql.DB
}

// NewRegistry opens (or creates) the registry database.
func NewRegistry(dbPath string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS datasets (
		dataset_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		columns_json TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_uploaded ON datasets(uploaded_at);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Save inserts or replaces a dataset record.
func (r *Registry) Save(ctx context.Context, ds *domain.Dataset) error {
	columns, err := json.Marshal(ds.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	query := `
	INSERT INTO datasets (dataset_id, name, path, columns_json, row_count, uploaded_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(dataset_id) DO UPDATE SET
		name = excluded.name,
		path = excluded.path,
		columns_json = excluded.columns_json,
		row_count = excluded.row_count,
		uploaded_at = excluded.uploaded_at`

	_, err = r.db.ExecContext(ctx, query,
		ds.ID, ds.Name, ds.Path, string(columns), ds.RowCount, ds.UploadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert dataset: %w", err)
	}
	return nil
}

// Get retrieves a dataset record by id. Returns nil when not found.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Dataset, error) {
	query := `
		SELECT dataset_id, name, path, columns_json, row_count, uploaded_at
		FROM datasets WHERE dataset_id = ?`

	return scanDataset(r.db.QueryRowContext(ctx, query, id))
}

// List returns all datasets, most recently uploaded first.
func (r *Registry) List(ctx context.Context) ([]*domain.Dataset, error) {
	query := `
		SELECT dataset_id, name, path, columns_json, row_count, uploaded_at
		FROM datasets ORDER BY uploaded_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return out, nil
}

// Delete removes a dataset record. Returns false if it did not exist.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE dataset_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete dataset: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*domain.Dataset, error) {
	var ds domain.Dataset
	var columnsJSON string
	var uploadedAt int64

	err := row.Scan(&ds.ID, &ds.Name, &ds.Path, &columnsJSON, &ds.RowCount, &uploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan dataset row: %w", err)
	}

	if err := json.Unmarshal([]byte(columnsJSON), &ds.Columns); err != nil {
		return nil, fmt.Errorf("unmarshal columns: %w", err)
	}
	ds.UploadedAt = time.Unix(uploadedAt, 0)
	return &ds, nil
}
