package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// messageKeywordIndex is the auxiliary keyword index over message
// content, backing retrospective conversation search. Same
// external-content FTS5 design as keywordIndex, mirroring the messages
// table instead of chunks.
type messageKeywordIndex struct {
	mu sync.RWMutex
	db *sql.DB
}

func newMessageKeywordIndex(db *sql.DB) (*messageKeywordIndex, error) {
	idx := &messageKeywordIndex{db: db}
	if err := idx.initSchema(); err != nil {
		return nil, fmt.Errorf("init message keyword schema: %w", err)
	}
	return idx, nil
}

func (m *messageKeywordIndex) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS message_fts USING fts5(
		content,
		content='messages',
		content_rowid='id',
		tokenize='porter unicode61'
	);
	`
	_, err := m.db.Exec(schema)
	return err
}

func (m *messageKeywordIndex) upsert(ctx context.Context, tx *sql.Tx, messageID int64, content string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_fts WHERE rowid = ?`, messageID); err != nil {
		return fmt.Errorf("delete existing message fts row %d: %w", messageID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO message_fts(rowid, content) VALUES (?, ?)`, messageID, content); err != nil {
		return fmt.Errorf("insert message fts row %d: %w", messageID, err)
	}
	return nil
}

func (m *messageKeywordIndex) search(ctx context.Context, query string, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT rowid FROM message_fts
		WHERE message_fts MATCH ?
		ORDER BY bm25(message_fts)
		LIMIT ?
	`, escapeFTS5Query(query), limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("message keyword search: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
