// Package storage provides the SQLite implementation of the Catalog interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS indexed_files (
		path TEXT PRIMARY KEY,
		point_id TEXT NOT NULL,
		species TEXT,
		mod_time TIMESTAMP NOT NULL,
		size INTEGER NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_indexed_files_point_id ON indexed_files(point_id);
	CREATE INDEX IF NOT EXISTS idx_indexed_files_species ON indexed_files(species);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert inserts or replaces the record for its path.
func (s *SQLiteCatalog) Upsert(ctx context.Context, rec *Record) error {
	rec.IndexedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO indexed_files (path, point_id, species, mod_time, size, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.PointID, rec.Species, rec.ModTime, rec.Size, rec.IndexedAt,
	)
	return err
}

// BatchUpsert inserts or replaces records in a transaction.
func (s *SQLiteCatalog) BatchUpsert(ctx context.Context, recs []*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO indexed_files (path, point_id, species, mod_time, size, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, rec := range recs {
		rec.IndexedAt = now
		if _, err := stmt.ExecContext(ctx, rec.Path, rec.PointID, rec.Species, rec.ModTime, rec.Size, rec.IndexedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get returns the record for a path.
func (s *SQLiteCatalog) Get(ctx context.Context, path string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT path, point_id, species, mod_time, size, indexed_at
		 FROM indexed_files WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.PointID, &rec.Species, &rec.ModTime, &rec.Size, &rec.IndexedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record for a path.
func (s *SQLiteCatalog) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE path = ?`, path)
	return err
}

// List returns all records ordered by path.
func (s *SQLiteCatalog) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, point_id, species, mod_time, size, indexed_at
		 FROM indexed_files ORDER BY path`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Path, &rec.PointID, &rec.Species, &rec.ModTime, &rec.Size, &rec.IndexedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Count returns the number of cataloged files.
func (s *SQLiteCatalog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_files`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

// Compile-time check that SQLiteCatalog implements Catalog.
var _ Catalog = (*SQLiteCatalog)(nil)
