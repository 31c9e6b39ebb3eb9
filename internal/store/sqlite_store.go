package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SQLiteStore is the metadata half of the Document Store: one database
// file holding documents, chunks, the FTS5 keyword index, conversations,
// messages and the message keyword index. Vector data lives in a sibling
// HNSWStore (kept separate since coder/hnsw owns its own on-disk format);
// the Store type in store.go composes both.
type SQLiteStore struct {
	mu  sync.Mutex // serializes all writes
	db  *sql.DB
	fts *keywordIndex
	mfts *messageKeywordIndex
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) the metadata database at
// path. Pass "" or ":memory:" for an ephemeral in-memory store (tests).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	fts, err := newKeywordIndex(db, path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.fts = fts

	mfts, err := newMessageKeywordIndex(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.mfts = mfts

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		path        TEXT NOT NULL UNIQUE,
		filename    TEXT NOT NULL,
		extension   TEXT NOT NULL,
		size        INTEGER NOT NULL,
		hash        TEXT NOT NULL,
		modified_at TEXT NOT NULL,
		indexed_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id   INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index   INTEGER NOT NULL,
		content       TEXT NOT NULL,
		token_count   INTEGER NOT NULL,
		has_embedding INTEGER NOT NULL DEFAULT 0,
		UNIQUE(document_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_unembedded ON chunks(has_embedding) WHERE has_embedding = 0;

	CREATE TABLE IF NOT EXISTS kv_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		timestamp       TEXT NOT NULL,
		tool_calls_json TEXT NOT NULL DEFAULT '',
		model_id        TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const (
	stateKeyEmbeddingModelName = "embedding_model_name"
	stateKeyEmbeddingModelDims = "embedding_model_dims"
)

func (s *SQLiteStore) UpsertDocument(ctx context.Context, path, filename, extension string, size int64, hash string, modifiedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(path, filename, extension, size, hash, modified_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename=excluded.filename, extension=excluded.extension,
			size=excluded.size, hash=excluded.hash,
			modified_at=excluded.modified_at, indexed_at=excluded.indexed_at
	`, path, filename, extension, size, hash, modifiedAt.UTC().Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("upsert document: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("read back document id: %w", err)
	}
	_ = res
	return id, nil
}

func (s *SQLiteStore) InsertChunk(ctx context.Context, documentID int64, index int, content string, tokenCount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE id = ?`, documentID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check document exists: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("insert_chunk: document %d does not exist", documentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chunks(document_id, chunk_index, content, token_count, has_embedding)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(document_id, chunk_index) DO UPDATE SET
			content=excluded.content, token_count=excluded.token_count, has_embedding=0
	`, documentID, index, content, tokenCount)
	if err != nil {
		return 0, fmt.Errorf("insert chunk: %w", err)
	}

	var chunkID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM chunks WHERE document_id = ? AND chunk_index = ?`, documentID, index).Scan(&chunkID); err != nil {
		return 0, fmt.Errorf("read back chunk id: %w", err)
	}

	if err := s.fts.upsert(ctx, tx, chunkID, content); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	_ = res
	return chunkID, nil
}

func (s *SQLiteStore) DeleteChunksForDocument(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if err := s.fts.delete(ctx, tx, id); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return tx.Commit()
}

// DeleteEmbeddingsForDocument clears the has_embedding flag on every
// chunk of the document. It does not touch the VectorStore, which is
// addressed by chunk id alone; the composed Store's
// DeleteEmbeddingsForDocument removes the matching vectors.
func (s *SQLiteStore) DeleteEmbeddingsForDocument(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE chunks SET has_embedding = 0 WHERE document_id = ?`, documentID)
	return err
}

func (s *SQLiteStore) MarkChunkEmbedded(ctx context.Context, chunkID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE chunks SET has_embedding = 1 WHERE id = ?`, chunkID)
	return err
}

func (s *SQLiteStore) GetUnembeddedChunks(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, has_embedding
		FROM chunks WHERE has_embedding = 0
		ORDER BY id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var hasEmbedding int
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.TokenCount, &hasEmbedding); err != nil {
			return nil, err
		}
		c.HasEmbedding = hasEmbedding != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordResult, error) {
	return s.fts.search(ctx, query, limit)
}

// VectorSearch on the bare metadata store has no index attached and
// returns empty results; Store overrides it with the HNSW-backed
// implementation.
func (s *SQLiteStore) VectorSearch(ctx context.Context, queryVector []float32, limit int, extensionFilter string) ([]VectorResult, error) {
	return nil, nil
}

func (s *SQLiteStore) InsertEmbedding(ctx context.Context, chunkID int64, vector []float32) error {
	return ErrVectorIndexDisabled
}

func (s *SQLiteStore) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&st.DocumentCount); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chunks`).Scan(&st.ChunkCount); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chunks WHERE has_embedding = 1`).Scan(&st.EmbeddedChunkCount); err != nil {
		return st, err
	}
	return st, nil
}

func (s *SQLiteStore) GetRecentDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, extension, size, hash, modified_at, indexed_at
		FROM documents ORDER BY indexed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, modified, indexed, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		d.ModifiedAt = modified
		d.IndexedAt = indexed
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocumentRow(rows *sql.Rows) (Document, time.Time, time.Time, error) {
	var d Document
	var modifiedStr, indexedStr string
	if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.Extension, &d.Size, &d.Hash, &modifiedStr, &indexedStr); err != nil {
		return d, time.Time{}, time.Time{}, err
	}
	modified, _ := time.Parse(time.RFC3339, modifiedStr)
	indexed, _ := time.Parse(time.RFC3339, indexedStr)
	return d, modified, indexed, nil
}

func (s *SQLiteStore) GetChunkWithDocument(ctx context.Context, chunkID int64) (ChunkWithDocument, error) {
	var out ChunkWithDocument
	var hasEmbedding int
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.has_embedding,
		       d.path, d.filename, d.extension
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.id = ?
	`, chunkID).Scan(&out.ID, &out.DocumentID, &out.Index, &out.Content, &out.TokenCount, &hasEmbedding,
		&out.Path, &out.Filename, &out.Extension)
	if err != nil {
		return out, fmt.Errorf("get chunk with document: %w", err)
	}
	out.HasEmbedding = hasEmbedding != 0
	return out, nil
}

func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, path string) (Document, bool, error) {
	var d Document
	var modifiedStr, indexedStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, extension, size, hash, modified_at, indexed_at
		FROM documents WHERE path = ?
	`, path).Scan(&d.ID, &d.Path, &d.Filename, &d.Extension, &d.Size, &d.Hash, &modifiedStr, &indexedStr)
	if err == sql.ErrNoRows {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	d.ModifiedAt, _ = time.Parse(time.RFC3339, modifiedStr)
	d.IndexedAt, _ = time.Parse(time.RFC3339, indexedStr)
	return d, true, nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID int64) error {
	if err := s.DeleteChunksForDocument(ctx, documentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	return err
}

func (s *SQLiteStore) GetEmbeddingModelIdentity(ctx context.Context) (string, int, error) {
	name, err := s.getState(ctx, stateKeyEmbeddingModelName)
	if err != nil {
		return "", 0, err
	}
	dimsStr, err := s.getState(ctx, stateKeyEmbeddingModelDims)
	if err != nil {
		return "", 0, err
	}
	dims, _ := strconv.Atoi(dimsStr)
	return name, dims, nil
}

func (s *SQLiteStore) SetEmbeddingModelIdentity(ctx context.Context, name string, dimensions int) error {
	if err := s.setState(ctx, stateKeyEmbeddingModelName, name); err != nil {
		return err
	}
	return s.setState(ctx, stateKeyEmbeddingModelDims, strconv.Itoa(dimensions))
}

func (s *SQLiteStore) MarkAllChunksUnembedded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE chunks SET has_embedding = 0`)
	return err
}

func (s *SQLiteStore) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) setState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *SQLiteStore) CreateConversation(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `INSERT INTO conversations(created_at, updated_at) VALUES (?, ?)`, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	return err
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, m Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages(conversation_id, role, content, timestamp, tool_calls_json, model_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ConversationID, string(m.Role), m.Content, ts.Format(time.RFC3339Nano), m.ToolCallsJSON, m.ModelID)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := s.mfts.upsert(ctx, tx, id, m.Content); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, ts.Format(time.RFC3339Nano), m.ConversationID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, timestamp, tool_calls_json, model_id
		FROM messages WHERE conversation_id = ? ORDER BY id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, ts, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessageRow(rows *sql.Rows) (Message, time.Time, error) {
	var m Message
	var role, tsStr string
	if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &tsStr, &m.ToolCallsJSON, &m.ModelID); err != nil {
		return m, time.Time{}, err
	}
	m.Role = MessageRole(role)
	ts, _ := time.Parse(time.RFC3339Nano, tsStr)
	return m, ts, nil
}

func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]Message, error) {
	ids, err := s.mfts.search(ctx, query, limit)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, conversation_id, role, content, timestamp, tool_calls_json, model_id
		FROM messages WHERE id IN (%s)
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, ts, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
