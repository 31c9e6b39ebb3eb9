package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_UpsertDocument_InsertAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	id1, err := s.UpsertDocument(ctx, "/notes/a.md", "a.md", ".md", 100, "hash1", now)
	require.NoError(t, err)
	assert.NotZero(t, id1)

	// Re-upserting the same path updates in place rather than duplicating.
	id2, err := s.UpsertDocument(ctx, "/notes/a.md", "a.md", ".md", 200, "hash2", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	doc, found, err := s.GetDocumentByPath(ctx, "/notes/a.md")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(200), doc.Size)
	assert.Equal(t, "hash2", doc.Hash)
}

func TestSQLiteStore_InsertChunk_MirrorsIntoKeywordIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/b.md", "b.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)

	chunkID, err := s.InsertChunk(ctx, docID, 0, "the quick brown fox jumps", 5)
	require.NoError(t, err)
	assert.NotZero(t, chunkID)

	// Invariant: the keyword-index row with rowid == chunk id exists and
	// mirrors the chunk content.
	results, err := s.KeywordSearch(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunkID, results[0].ChunkID)
}

func TestSQLiteStore_InsertChunk_RejectsUnknownDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, 9999, 0, "orphan content", 2)
	assert.Error(t, err)
}

func TestSQLiteStore_DeleteChunksForDocument_RemovesKeywordRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/c.md", "c.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)

	chunkID, err := s.InsertChunk(ctx, docID, 0, "lorem ipsum dolor", 3)
	require.NoError(t, err)

	require.NoError(t, s.DeleteChunksForDocument(ctx, docID))

	results, err := s.KeywordSearch(ctx, "lorem", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	unembedded, err := s.GetUnembeddedChunks(ctx, 10)
	require.NoError(t, err)
	for _, c := range unembedded {
		assert.NotEqual(t, chunkID, c.ID)
	}
}

func TestSQLiteStore_MarkChunkEmbedded_UpdatesStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/d.md", "d.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)
	chunkID, err := s.InsertChunk(ctx, docID, 0, "some content here", 3)
	require.NoError(t, err)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EmbeddedChunkCount)

	require.NoError(t, s.MarkChunkEmbedded(ctx, chunkID))

	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddedChunkCount)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, 1, stats.DocumentCount)
}

func TestSQLiteStore_GetUnembeddedChunks_ExcludesEmbedded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/e.md", "e.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)

	c1, err := s.InsertChunk(ctx, docID, 0, "first chunk", 2)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, docID, 1, "second chunk", 2)
	require.NoError(t, err)

	require.NoError(t, s.MarkChunkEmbedded(ctx, c1))

	unembedded, err := s.GetUnembeddedChunks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unembedded, 1)
	assert.Equal(t, "second chunk", unembedded[0].Content)
}

func TestSQLiteStore_EmbeddingModelIdentity_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name, dims, err := s.GetEmbeddingModelIdentity(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Zero(t, dims)

	require.NoError(t, s.SetEmbeddingModelIdentity(ctx, "local-384", 384))

	name, dims, err = s.GetEmbeddingModelIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local-384", name)
	assert.Equal(t, 384, dims)
}

func TestSQLiteStore_MarkAllChunksUnembedded_InvalidatesOnBackendChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/f.md", "f.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)
	chunkID, err := s.InsertChunk(ctx, docID, 0, "content", 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkChunkEmbedded(ctx, chunkID))

	require.NoError(t, s.MarkAllChunksUnembedded(ctx))

	unembedded, err := s.GetUnembeddedChunks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unembedded, 1)
	assert.Equal(t, chunkID, unembedded[0].ID)
}

func TestSQLiteStore_DeleteDocument_CascadesChunksAndKeywordIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/g.md", "g.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, docID, 0, "searchable sentence", 2)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, docID))

	_, found, err := s.GetDocumentByPath(ctx, "/notes/g.md")
	require.NoError(t, err)
	assert.False(t, found)

	results, err := s.KeywordSearch(ctx, "searchable", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteStore_GetChunkWithDocument_Joins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, "/notes/h.md", "h.md", ".md", 10, "h", time.Now())
	require.NoError(t, err)
	chunkID, err := s.InsertChunk(ctx, docID, 0, "joined content", 2)
	require.NoError(t, err)

	cwd, err := s.GetChunkWithDocument(ctx, chunkID)
	require.NoError(t, err)
	assert.Equal(t, "joined content", cwd.Content)
	assert.Equal(t, "/notes/h.md", cwd.Path)
	assert.Equal(t, "h.md", cwd.Filename)
}

func TestSQLiteStore_Conversations_AppendAndSearchMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	convID, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, Message{
		ConversationID: convID,
		Role:           RoleUser,
		Content:        "how do I configure the embedding backend",
	})
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, Message{
		ConversationID: convID,
		Role:           RoleAssistant,
		Content:        "set the backend field in settings.json",
	})
	require.NoError(t, err)

	msgs, err := s.GetMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	found, err := s.SearchMessages(ctx, "embedding backend", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Content, "embedding backend")
}

func TestSQLiteStore_DeleteConversation_RemovesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	convID, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, Message{ConversationID: convID, Role: RoleUser, Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, convID))

	msgs, err := s.GetMessages(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSQLiteStore_GetRecentDocuments_OrdersByIndexedAtDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertDocument(ctx, "/notes/old.md", "old.md", ".md", 1, "h1", time.Now())
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = s.UpsertDocument(ctx, "/notes/new.md", "new.md", ".md", 1, "h2", time.Now())
	require.NoError(t, err)

	docs, err := s.GetRecentDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new.md", docs[0].Filename)
}

func TestSQLiteStore_KeywordSearch_EmptyQueryReturnsNoResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	results, err := s.KeywordSearch(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
