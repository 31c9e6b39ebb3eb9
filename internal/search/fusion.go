package search

import (
	"math"
	"sort"
	"strconv"

	"github.com/Aman-CERP/localagent/internal/store"
)

// RRFConstant is the smoothing parameter k from the original
// Reciprocal Rank Fusion paper.
const RRFConstant = 60

// fused is one chunk's accumulated RRF state before materialization.
type fused struct {
	chunkID   int64
	score     float64
	inKeyword bool
	inVector  bool
}

// source reports which index (or both) contributed this chunk.
func (f *fused) source() Source {
	switch {
	case f.inKeyword && f.inVector:
		return SourceHybrid
	case f.inVector:
		return SourceVector
	default:
		return SourceKeyword
	}
}

// fuse combines the two ranked lists. An item at 1-based rank r in one
// list contributes exactly 1/(k+r); an item in both lists gets the sum
// of its two contributions and nothing more — there is no weighting, no
// phantom contribution for the list it is absent from, and no score
// normalization afterwards.
//
// Output is sorted by fused score descending with a stable, fully
// deterministic tie-break; NaN scores sort to the end.
func fuse(keyword []store.KeywordResult, vector []store.VectorResult) []*fused {
	if len(keyword) == 0 && len(vector) == 0 {
		return []*fused{}
	}

	acc := make(map[int64]*fused, len(keyword)+len(vector))
	get := func(id int64) *fused {
		if f, ok := acc[id]; ok {
			return f
		}
		f := &fused{chunkID: id}
		acc[id] = f
		return f
	}

	for rank, r := range keyword {
		f := get(r.ChunkID)
		f.inKeyword = true
		f.score += 1.0 / float64(RRFConstant+rank+1)
	}
	for rank, r := range vector {
		id, ok := parseChunkID(r.ID)
		if !ok {
			continue
		}
		f := get(id)
		f.inVector = true
		f.score += 1.0 / float64(RRFConstant+rank+1)
	}

	out := make([]*fused, 0, len(acc))
	for _, f := range acc {
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aNaN, bNaN := math.IsNaN(a.score), math.IsNaN(b.score)
		if aNaN != bNaN {
			return bNaN // NaN sorts last
		}
		if !aNaN && a.score != b.score {
			return a.score > b.score
		}
		// Tie-break: both-list hits first, then lowest chunk id.
		aBoth := a.inKeyword && a.inVector
		bBoth := b.inKeyword && b.inVector
		if aBoth != bBoth {
			return aBoth
		}
		return a.chunkID < b.chunkID
	})

	return out
}

func parseChunkID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
