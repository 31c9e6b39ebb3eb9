package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// keywordIndex implements the full-text search half of the Document
// Store using SQLite FTS5 with its built-in porter-stemming unicode
// tokenizer.
//
// Rows are kept synchronized with the chunks table synchronously: every
// insert/update/delete on a chunk propagates here in the same
// transaction (see sqlite_store.go).
type keywordIndex struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

func validateFTS5Integrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func openSQLite(path string) (*sql.DB, error) {
	var dsn string
	if path == "" || path == ":memory:" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		if validErr := validateFTS5Integrity(path); validErr != nil {
			slog.Warn("sqlite_index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("sqlite_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: all writes serialize behind it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return db, nil
}

func newKeywordIndex(db *sql.DB, path string) (*keywordIndex, error) {
	idx := &keywordIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		return nil, fmt.Errorf("init keyword schema: %w", err)
	}
	return idx, nil
}

func (k *keywordIndex) initSchema() error {
	// content='chunks', content_rowid='id' makes this an external-content
	// FTS5 table mirroring the chunks table by rowid: the index row for a
	// chunk is literally addressed by the chunk's own id.
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
		content,
		content='chunks',
		content_rowid='id',
		tokenize='porter unicode61'
	);
	`
	_, err := k.db.Exec(schema)
	return err
}

// upsert mirrors a single chunk's content into the FTS index. Must be
// called inside the same transaction as the chunks table write to keep
// the invariant synchronous.
func (k *keywordIndex) upsert(ctx context.Context, tx *sql.Tx, chunkID int64, content string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_fts WHERE rowid = ?`, chunkID); err != nil {
		return fmt.Errorf("delete existing fts row %d: %w", chunkID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_fts(rowid, content) VALUES (?, ?)`, chunkID, content); err != nil {
		return fmt.Errorf("insert fts row %d: %w", chunkID, err)
	}
	return nil
}

func (k *keywordIndex) delete(ctx context.Context, tx *sql.Tx, chunkID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM chunk_fts WHERE rowid = ?`, chunkID)
	return err
}

// search returns matches ordered ascending by FTS5's native bm25()
// score: more negative means a better match, so no negation is applied.
func (k *keywordIndex) search(ctx context.Context, query string, limit int) ([]KeywordResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := k.db.QueryContext(ctx, `
		SELECT rowid, bm25(chunk_fts) AS rank
		FROM chunk_fts
		WHERE chunk_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, escapeFTS5Query(query), limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.ChunkID, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan keyword result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// escapeFTS5Query wraps each whitespace-separated term in double quotes
// so punctuation in user queries (e.g. "C++", "foo:bar") can't be
// misread as FTS5 query-syntax operators.
func escapeFTS5Query(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
