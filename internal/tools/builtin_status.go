package tools

import (
	"context"
	"fmt"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
	"github.com/Aman-CERP/localagent/internal/store"
)

const indexStatusParamsSchema = `{"type": "object", "properties": {}}`

// NewIndexStatusTool reports the corpus's current size.
func NewIndexStatusTool(metadata store.MetadataStore) (Tool, Handler) {
	tool := Tool{
		Name:        ToolIndexStatus,
		Description: "Report how many documents and chunks are currently indexed.",
		Parameters:  []byte(indexStatusParamsSchema),
		Source:      BuiltinSource,
	}

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		stats, err := metadata.GetStats(ctx)
		if err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeInternal, "failed to read index stats", err)
		}
		return fmt.Sprintf("Indexed %d documents, %d chunks (%d with embeddings)",
			stats.DocumentCount, stats.ChunkCount, stats.EmbeddedChunkCount), nil
	}

	return tool, handler
}
