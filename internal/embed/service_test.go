package embed

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder counts calls so batching behavior can be asserted.
type fakeEmbedder struct {
	mu          sync.Mutex
	embedCalls  int
	batchCalls  []int
	dims        int
	failAlways  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways {
		return nil, fmt.Errorf("forced failure")
	}
	f.embedCalls++
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways {
		return nil, fmt.Errorf("forced failure")
	}
	f.batchCalls = append(f.batchCalls, len(texts))
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                    { return f.dims }
func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

// newReadyService wires a fake embedder in as if a load had succeeded.
func newReadyService(e Embedder) *Service {
	s := NewService(ServiceConfig{})
	s.state = StateReady
	s.backend = BackendLocal
	s.embedder = e
	s.loaded = make(chan struct{})
	close(s.loaded)
	return s
}

func TestServiceStartsUnloaded(t *testing.T) {
	s := NewService(ServiceConfig{})
	assert.Equal(t, StateUnloaded, s.Status())
	assert.Equal(t, BackendNone, s.Backend())
	assert.False(t, s.IsLoading())
}

func TestServiceSettlesOnNoneWhenNoBackendAvailable(t *testing.T) {
	s := NewService(ServiceConfig{
		ArtifactsDir:  t.TempDir(),
		DisableLocal:  true,
		DisableRemote: true,
	})

	require.NoError(t, s.WaitReady(context.Background()))
	assert.Equal(t, StateNone, s.Status())
	assert.Equal(t, BackendNone, s.Backend())

	_, err := s.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestServiceConcurrentActivateCollapses(t *testing.T) {
	s := NewService(ServiceConfig{
		ArtifactsDir:  t.TempDir(),
		DisableLocal:  true,
		DisableRemote: true,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Activate()
		}()
	}
	wg.Wait()

	require.NoError(t, s.WaitReady(context.Background()))
	assert.Equal(t, StateNone, s.Status())
}

func TestEmbedBatchEmptyInputSkipsBackend(t *testing.T) {
	// An unloaded service must still return empty output for empty
	// input, with no backend touch and no error.
	s := NewService(ServiceConfig{})
	out, err := s.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmbedBatchTwoOrFewerGoSequential(t *testing.T) {
	fake := &fakeEmbedder{dims: 4}
	s := newReadyService(fake)

	out, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 2, fake.embedCalls)
	assert.Empty(t, fake.batchCalls)
}

func TestEmbedBatchSplitsIntoSubBatches(t *testing.T) {
	fake := &fakeEmbedder{dims: 4}
	s := newReadyService(fake)

	texts := make([]string, SubBatchSize*2+3)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	out, err := s.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, out, len(texts))
	assert.Equal(t, []int{SubBatchSize, SubBatchSize, 3}, fake.batchCalls)
	assert.Zero(t, fake.embedCalls)
}

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := normalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
