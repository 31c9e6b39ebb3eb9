package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/localagent/internal/eventbus"
	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/store"
	"github.com/Aman-CERP/localagent/internal/tools"
)

// fakeBackend scripts a fixed sequence of Generate responses, one per
// call, so tests can exercise multi-iteration ReAct loops deterministically.
type fakeBackend struct {
	responses []model.GenerateResult
	calls     int
}

func (f *fakeBackend) EnsureLoaded(string)   {}
func (f *fakeBackend) Status() model.Status  { return model.StatusReady }
func (f *fakeBackend) IsLoading() bool       { return false }

func (f *fakeBackend) Generate(ctx context.Context, req model.GenerateRequest) (model.GenerateResult, error) {
	if f.calls >= len(f.responses) {
		return model.GenerateResult{}, nil
	}
	r := f.responses[f.calls]
	f.calls++
	if req.OnTextDelta != nil && r.Content != "" {
		req.OnTextDelta(r.Content)
	}
	return r, nil
}

// fakeStore is a minimal store.MetadataStore: only the methods the
// agent engine touches (GetStats, AppendMessage) do real work, the rest
// are unused by these tests.
type fakeStore struct {
	stats    store.Stats
	messages []store.Message
}

func (f *fakeStore) UpsertDocument(context.Context, string, string, string, int64, string, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) InsertChunk(context.Context, int64, int, string, int) (int64, error) { return 0, nil }
func (f *fakeStore) DeleteChunksForDocument(context.Context, int64) error                { return nil }
func (f *fakeStore) DeleteEmbeddingsForDocument(context.Context, int64) error             { return nil }
func (f *fakeStore) MarkChunkEmbedded(context.Context, int64) error                       { return nil }
func (f *fakeStore) GetUnembeddedChunks(context.Context, int) ([]store.Chunk, error)       { return nil, nil }
func (f *fakeStore) KeywordSearch(context.Context, string, int) ([]store.KeywordResult, error) {
	return nil, nil
}
func (f *fakeStore) VectorSearch(context.Context, []float32, int, string) ([]store.VectorResult, error) {
	return nil, nil
}
func (f *fakeStore) InsertEmbedding(context.Context, int64, []float32) error { return nil }
func (f *fakeStore) GetStats(context.Context) (store.Stats, error)          { return f.stats, nil }
func (f *fakeStore) GetRecentDocuments(context.Context, int) ([]store.Document, error) {
	return nil, nil
}
func (f *fakeStore) GetChunkWithDocument(context.Context, int64) (store.ChunkWithDocument, error) {
	return store.ChunkWithDocument{}, nil
}
func (f *fakeStore) GetDocumentByPath(context.Context, string) (store.Document, bool, error) {
	return store.Document{}, false, nil
}
func (f *fakeStore) DeleteDocument(context.Context, int64) error { return nil }
func (f *fakeStore) GetEmbeddingModelIdentity(context.Context) (string, int, error) {
	return "", 0, nil
}
func (f *fakeStore) SetEmbeddingModelIdentity(context.Context, string, int) error { return nil }
func (f *fakeStore) MarkAllChunksUnembedded(context.Context) error                { return nil }
func (f *fakeStore) CreateConversation(context.Context) (int64, error)           { return 1, nil }
func (f *fakeStore) DeleteConversation(context.Context, int64) error             { return nil }
func (f *fakeStore) AppendMessage(ctx context.Context, m store.Message) (int64, error) {
	f.messages = append(f.messages, m)
	return int64(len(f.messages)), nil
}
func (f *fakeStore) GetMessages(context.Context, int64) ([]store.Message, error) { return nil, nil }
func (f *fakeStore) SearchMessages(context.Context, string, int) ([]store.Message, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func TestRunWithNoToolCallsFinishesInOneIteration(t *testing.T) {
	backend := &fakeBackend{responses: []model.GenerateResult{
		{Content: "hello there"},
	}}
	registry := tools.NewRegistry()
	st := &fakeStore{}
	eng := NewEngine(backend, registry, st)
	bus := eventbus.New(0)
	sub := bus.Subscribe()
	defer sub.Close()

	result, err := eng.Run(context.Background(), []Message{{Role: model.RoleUser, Content: "hi"}}, Options{}, bus)
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, 1, result.Iterations)
	assert.Empty(t, result.ToolCallsExecuted)

	var types []eventbus.Type
	for i := 0; i < 20; i++ {
		select {
		case e := <-sub.Events:
			types = append(types, e.Type)
		default:
			i = 20
		}
	}
	assert.Contains(t, types, eventbus.RunStarted)
	assert.Contains(t, types, eventbus.RunFinished)
}

func TestRunExecutesSafeToolCallThenFinishes(t *testing.T) {
	backend := &fakeBackend{responses: []model.GenerateResult{
		{ToolCalls: []model.ToolCall{{ID: "call_1", Name: "echo", Arguments: map[string]any{"text": "hi"}}}},
		{Content: "done"},
	}}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{Name: "echo", Source: tools.BuiltinSource}, func(ctx context.Context, args map[string]any) (string, error) {
		return "echoed", nil
	}))
	// "echo" does not match any built-in name, so classifyBuiltin's
	// default (Moderate) applies; registering it with BuiltinSource
	// exercises that fallback branch.

	eng := NewEngine(backend, registry, &fakeStore{})
	bus := eventbus.New(0)

	result, err := eng.Run(context.Background(), []Message{{Role: model.RoleUser, Content: "say hi"}}, Options{AutoApproveSafe: true}, bus)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, 2, result.Iterations)
	require.Len(t, result.ToolCallsExecuted, 1)
	assert.Equal(t, "echoed", result.ToolCallsExecuted[0].Result)
	assert.False(t, result.ToolCallsExecuted[0].Denied)
}

func TestRunDeniesDangerousToolWithoutAutoApproval(t *testing.T) {
	backend := &fakeBackend{responses: []model.GenerateResult{
		{ToolCalls: []model.ToolCall{{ID: "call_1", Name: tools.ToolRunCommand, Arguments: map[string]any{"command": "ls"}}}},
		{Content: "ok"},
	}}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{Name: tools.ToolRunCommand, Source: tools.BuiltinSource}, func(ctx context.Context, args map[string]any) (string, error) {
		t.Fatal("dangerous tool must not execute without approval")
		return "", nil
	}))

	eng := NewEngine(backend, registry, &fakeStore{})
	bus := eventbus.New(0)

	result, err := eng.Run(context.Background(), []Message{{Role: model.RoleUser, Content: "run ls"}}, Options{}, bus)
	require.NoError(t, err)
	require.Len(t, result.ToolCallsExecuted, 1)
	assert.True(t, result.ToolCallsExecuted[0].Denied)
	assert.Contains(t, result.ToolCallsExecuted[0].Result, "requires user approval")
}

func TestRunStopsAtMaxIterationsAndEmitsCustomEvent(t *testing.T) {
	responses := make([]model.GenerateResult, 5)
	for i := range responses {
		responses[i] = model.GenerateResult{ToolCalls: []model.ToolCall{{ID: "x", Name: "echo", Arguments: nil}}}
	}
	backend := &fakeBackend{responses: responses}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{Name: "echo", Source: tools.BuiltinSource}, func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	}))

	eng := NewEngine(backend, registry, &fakeStore{})
	bus := eventbus.New(0)
	sub := bus.Subscribe()
	defer sub.Close()

	result, err := eng.Run(context.Background(), []Message{{Role: model.RoleUser, Content: "loop"}}, Options{MaxIterations: 3, AutoApproveSafe: true}, bus)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)

	var sawMaxReached bool
	for i := 0; i < 50; i++ {
		select {
		case e := <-sub.Events:
			if e.Type == eventbus.Custom && e.Name == "max_iterations_reached" {
				sawMaxReached = true
			}
		default:
			i = 50
		}
	}
	assert.True(t, sawMaxReached)
}

func TestRunPersistsToConversationWhenIDProvided(t *testing.T) {
	backend := &fakeBackend{responses: []model.GenerateResult{{Content: "answer"}}}
	registry := tools.NewRegistry()
	st := &fakeStore{}
	eng := NewEngine(backend, registry, st)
	bus := eventbus.New(0)

	_, err := eng.Run(context.Background(), []Message{{Role: model.RoleUser, Content: "question"}}, Options{ConversationID: 7}, bus)
	require.NoError(t, err)
	require.Len(t, st.messages, 2)
	assert.Equal(t, store.RoleUser, st.messages[0].Role)
	assert.Equal(t, "question", st.messages[0].Content)
	assert.Equal(t, store.RoleAssistant, st.messages[1].Role)
	assert.Equal(t, "answer", st.messages[1].Content)
}
