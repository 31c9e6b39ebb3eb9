package search

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/localagent/internal/store"
)

func kw(ids ...int64) []store.KeywordResult {
	out := make([]store.KeywordResult, len(ids))
	for i, id := range ids {
		out[i] = store.KeywordResult{ChunkID: id, Rank: float64(i)}
	}
	return out
}

func vec(ids ...int64) []store.VectorResult {
	out := make([]store.VectorResult, len(ids))
	for i, id := range ids {
		out[i] = store.VectorResult{ID: strconv.FormatInt(id, 10), Distance: float32(i)}
	}
	return out
}

func TestFuseEmptyInputs(t *testing.T) {
	assert.Empty(t, fuse(nil, nil))
}

func TestFuseSingleListScores(t *testing.T) {
	// An item at 1-based rank r in only one list scores exactly
	// 1/(60+r), with no contribution from the list it is absent from.
	out := fuse(kw(7, 8, 9), nil)
	require.Len(t, out, 3)

	assert.Equal(t, int64(7), out[0].chunkID)
	assert.InDelta(t, 1.0/61.0, out[0].score, 1e-12)
	assert.InDelta(t, 1.0/62.0, out[1].score, 1e-12)
	assert.InDelta(t, 1.0/63.0, out[2].score, 1e-12)
	assert.Equal(t, SourceKeyword, out[0].source())
}

func TestFuseBothListsSumContributions(t *testing.T) {
	// Chunk A ranked first in both lists, chunk B second in both.
	out := fuse(kw(1, 2), vec(1, 2))
	require.Len(t, out, 2)

	assert.Equal(t, int64(1), out[0].chunkID)
	assert.InDelta(t, 2.0/61.0, out[0].score, 1e-12)
	assert.Equal(t, SourceHybrid, out[0].source())

	assert.Equal(t, int64(2), out[1].chunkID)
	assert.InDelta(t, 2.0/62.0, out[1].score, 1e-12)
}

func TestFuseMixedRanks(t *testing.T) {
	// Chunk 5 is rank 2 in keyword and rank 1 in vector.
	out := fuse(kw(4, 5), vec(5))
	require.Len(t, out, 2)

	assert.Equal(t, int64(5), out[0].chunkID)
	assert.InDelta(t, 1.0/62.0+1.0/61.0, out[0].score, 1e-12)
	assert.Equal(t, SourceHybrid, out[0].source())

	assert.Equal(t, int64(4), out[1].chunkID)
	assert.Equal(t, SourceKeyword, out[1].source())
}

func TestFuseVectorOnlySource(t *testing.T) {
	out := fuse(nil, vec(3))
	require.Len(t, out, 1)
	assert.Equal(t, SourceVector, out[0].source())
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	// Two keyword-only items can never tie (ranks differ), so build a
	// tie across lists: id 10 at keyword rank 1, id 20 at vector rank 1.
	out := fuse(kw(10), vec(20))
	require.Len(t, out, 2)
	assert.Equal(t, out[0].score, out[1].score)
	assert.Equal(t, int64(10), out[0].chunkID) // lower id wins the tie
}

func TestFuseIgnoresUnparseableVectorIDs(t *testing.T) {
	out := fuse(nil, []store.VectorResult{{ID: "not-a-number"}, {ID: "11"}})
	require.Len(t, out, 1)
	assert.Equal(t, int64(11), out[0].chunkID)
}

func TestSnippetShortContentUntouched(t *testing.T) {
	assert.Equal(t, "hello world", Snippet("hello world", 200))
}

func TestSnippetBreaksOnWordBoundary(t *testing.T) {
	s := Snippet("alpha beta gamma delta", 12)
	assert.Equal(t, "alpha beta…", s)
}

func TestSnippetNeverSplitsCodepoints(t *testing.T) {
	// Each rune is 3 bytes; cutting at 7 bytes would land mid-rune.
	s := Snippet("日本語 テスト ワード", 7)
	assert.True(t, len(s) > 0)
	for _, r := range s {
		assert.NotEqual(t, '�', r)
	}
}
