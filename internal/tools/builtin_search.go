package tools

import (
	"context"
	"fmt"
	"strings"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
	"github.com/Aman-CERP/localagent/internal/search"
)

const (
	searchDefaultLimit = 10
	searchMaxLimit     = 50
)

// searchParamsSchema describes the search tool's input.
const searchParamsSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "natural-language or keyword search query"},
		"limit": {"type": "integer", "description": "maximum number of results, default 10, max 50"}
	},
	"required": ["query"]
}`

// NewSearchTool builds the search built-in against the Hybrid
// Retriever. Its handler returns a numbered list of
// "<filename> <path> score <snippet>" lines, or "No results found."
// when nothing matches.
func NewSearchTool(engine search.SearchEngine) (Tool, Handler) {
	tool := Tool{
		Name:        ToolSearch,
		Description: "Search the indexed document corpus using hybrid keyword+semantic retrieval.",
		Parameters:  []byte(searchParamsSchema),
		Source:      BuiltinSource,
	}

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := stringArg(args, "query")
		query = strings.TrimSpace(query)
		if query == "" {
			return "", agenterrors.New(agenterrors.ErrCodeInvalidInput, "search requires a non-empty query", nil)
		}

		limit := searchDefaultLimit
		if raw, ok := args["limit"]; ok {
			if n, ok := toInt(raw); ok && n > 0 {
				limit = n
			}
		}
		if limit > searchMaxLimit {
			limit = searchMaxLimit
		}

		results, err := engine.Search(ctx, query, search.SearchOptions{Limit: limit})
		if err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeSearchFailed, "search failed", err)
		}
		if len(results) == 0 {
			return "No results found.", nil
		}

		var b strings.Builder
		for i, r := range results {
			fmt.Fprintf(&b, "%d. %s %s score=%.4f %s\n", i+1, r.Filename, r.Path, r.Score, r.Snippet)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}

	return tool, handler
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
