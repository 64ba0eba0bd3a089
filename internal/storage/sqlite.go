package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/internal/vector"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath, checks its
// integrity and initializes the schema. Parent directories are created if they
// do not exist. A file that is not a valid database yields an error.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to check database: %w", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, fmt.Errorf("database integrity check failed: %s", check)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		company TEXT NOT NULL,
		year TEXT NOT NULL,
		quarter TEXT NOT NULL,
		section TEXT NOT NULL,
		source_file TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_company ON chunks(company COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_chunks_period ON chunks(year, quarter);
	CREATE INDEX IF NOT EXISTS idx_chunks_section ON chunks(section);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

const chunkColumns = `id, text, company, year, quarter, section, source_file, page_number, chunk_index`

// InsertChunks stores chunks with their embeddings, and src when non-nil, in one transaction.
func (s *SQLiteCatalog) InsertChunks(ctx context.Context, chunks []*models.Chunk, vectors [][]float32, src *models.Source) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Text, c.Company, c.Year, c.Quarter, c.Section, c.SourceFile, c.PageNumber, c.ChunkIndex,
			vector.EncodeVector(vectors[i]), now,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if src != nil {
		if err := putSource(ctx, tx, src); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunks returns the chunks for ids in the order given. Unknown ids are skipped.
func (s *SQLiteCatalog) GetChunks(ctx context.Context, ids []string) ([]*models.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*models.Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// FilterIDs returns ids of chunks matching f in insertion order. Company matches
// case-insensitively; the other fields match exactly.
func (s *SQLiteCatalog) FilterIDs(ctx context.Context, f models.Filter) ([]string, error) {
	f = f.Normalize()
	var where []string
	var args []any
	if f.Company != "" {
		where = append(where, "company = ? COLLATE NOCASE")
		args = append(args, f.Company)
	}
	if f.Year != "" {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.Quarter != "" {
		where = append(where, "quarter = ?")
		args = append(args, f.Quarter)
	}
	if f.Section != "" {
		where = append(where, "section = ?")
		args = append(args, f.Section)
	}
	query := `SELECT id FROM chunks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ScanEmbeddings calls fn for every embedding in insertion order.
func (s *SQLiteCatalog) ScanEmbeddings(ctx context.Context, fn func(id string, vec []float32) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		if err := fn(id, vector.DecodeVector(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanChunks calls fn for every chunk in insertion order.
func (s *SQLiteCatalog) ScanChunks(ctx context.Context, fn func(c *models.Chunk) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanChunk(rows *sql.Rows) (*models.Chunk, error) {
	var c models.Chunk
	if err := rows.Scan(&c.ID, &c.Text, &c.Company, &c.Year, &c.Quarter, &c.Section,
		&c.SourceFile, &c.PageNumber, &c.ChunkIndex); err != nil {
		return nil, err
	}
	return &c, nil
}

// CountChunks returns the total number of chunks.
func (s *SQLiteCatalog) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Companies returns the sorted distinct companies, excluding Unknown.
func (s *SQLiteCatalog) Companies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT company FROM chunks WHERE company <> ? AND company <> '' ORDER BY company`,
		models.Unknown)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	companies := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// Quarters returns the distinct periods ordered by year then quarter, excluding
// any period with an Unknown part.
func (s *SQLiteCatalog) Quarters(ctx context.Context) ([]models.Period, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT year, quarter FROM chunks
		 WHERE year <> ? AND quarter <> ? AND year <> '' AND quarter <> ''
		 ORDER BY year, quarter`,
		models.Unknown, models.Unknown)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	periods := []models.Period{}
	for rows.Next() {
		var p models.Period
		if err := rows.Scan(&p.Year, &p.Quarter); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// GetSource returns the source with the given id, or an error wrapping models.ErrNotFound.
func (s *SQLiteCatalog) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var src models.Source
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, size, mod_time, chunks, ingested_at FROM sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.Path, &src.Size, &src.ModTime, &src.Chunks, &src.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// PutSource inserts or replaces a source record.
func (s *SQLiteCatalog) PutSource(ctx context.Context, src *models.Source) error {
	return putSource(ctx, s.db, src)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putSource(ctx context.Context, db execer, src *models.Source) error {
	if src.IngestedAt.IsZero() {
		src.IngestedAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO sources (id, path, size, mod_time, chunks, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET path = excluded.path, size = excluded.size,
		   mod_time = excluded.mod_time, chunks = sources.chunks + excluded.chunks,
		   ingested_at = excluded.ingested_at`,
		src.ID, src.Path, src.Size, src.ModTime, src.Chunks, src.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("put source %s: %w", src.ID, err)
	}
	return nil
}

// ListSources returns all sources ordered by path.
func (s *SQLiteCatalog) ListSources(ctx context.Context) ([]*models.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, size, mod_time, chunks, ingested_at FROM sources ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Path, &src.Size, &src.ModTime, &src.Chunks, &src.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

// Meta returns the value stored under key, or "" when absent.
func (s *SQLiteCatalog) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetMeta stores value under key.
func (s *SQLiteCatalog) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

var _ Catalog = (*SQLiteCatalog)(nil)
