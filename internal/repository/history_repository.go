package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// timeLayout is fixed-width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteHistoryRepository implements HistoryRepository on a SQLite file.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository opens (or creates) the history database at path.
func NewSQLiteHistoryRepository(path string) (*SQLiteHistoryRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time keeps SQLite out of "database is locked".
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			reference TEXT NOT NULL,
			flavor TEXT NOT NULL,
			stage TEXT NOT NULL,
			kind TEXT,
			quality TEXT,
			files TEXT,
			bytes INTEGER NOT NULL DEFAULT 0,
			suspicious INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// Record stores one entry. Recording the same ID twice replaces the entry.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, entry domain.HistoryEntry) error {
	files, err := json.Marshal(entry.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history
			(id, reference, flavor, stage, kind, quality, files, bytes, suspicious, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Reference.String(),
		entry.Flavor,
		string(entry.Stage),
		string(entry.Kind),
		string(entry.Quality),
		string(files),
		entry.Bytes,
		entry.Suspicious,
		entry.Error,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (r *SQLiteHistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reference, flavor, stage, kind, quality, files, bytes, suspicious, error, created_at
		FROM history
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			e                                 domain.HistoryEntry
			ref, stage, kind, quality, errMsg sql.NullString
			files, createdAt                  sql.NullString
		)
		if err := rows.Scan(&e.ID, &ref, &e.Flavor, &stage, &kind, &quality, &files, &e.Bytes, &e.Suspicious, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Reference = domain.MediaReference(ref.String)
		e.Stage = domain.Stage(stage.String)
		e.Kind = domain.ResultKind(kind.String)
		e.Quality = domain.Quality(quality.String)
		e.Error = errMsg.String
		if files.Valid && files.String != "" && files.String != "null" {
			if err := json.Unmarshal([]byte(files.String), &e.Files); err != nil {
				return nil, fmt.Errorf("decode files: %w", err)
			}
		}
		if t, err := time.Parse(timeLayout, createdAt.String); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}

// Close closes the database.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}
