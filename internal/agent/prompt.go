package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/store"
)

const identityParagraph = `You are LocalAgent, a private local assistant. You run entirely on this machine: nothing you read or say leaves it. Be concise — answer directly, skip preamble and summaries unless asked for them.`

const hardGuidelines = `Guidelines:
- Prefer your tools over guessing when a question is about files, documents, or the index: use search, read_file, or list_directory rather than recalling from memory.
- Never fabricate file paths or file contents. If you have not read something, say so.
- Explain what a shell command will do before running it.
- Prefer read-only tools (search, read_file, list_directory, index_status) over write_file or run_command whenever they answer the question.`

// BuildSystemPrompt assembles the system prompt: identity,
// hard guidelines, index-state context from GetStats, and skill context
// for any skill whose triggers match the most recent user message.
func BuildSystemPrompt(ctx context.Context, metadata store.MetadataStore, skills []Skill, lastUserMessage string) string {
	var b strings.Builder
	b.WriteString(identityParagraph)
	b.WriteString("\n\n")
	b.WriteString(hardGuidelines)

	if metadata != nil {
		if stats, err := metadata.GetStats(ctx); err == nil {
			fmt.Fprintf(&b, "\n\nIndex state: %d documents, %d chunks, %d embedded.",
				stats.DocumentCount, stats.ChunkCount, stats.EmbeddedChunkCount)
		}
	}

	matched := MatchingSkills(skills, lastUserMessage)
	for _, s := range matched {
		fmt.Fprintf(&b, "\n\n## Skill: %s\n%s\n%s", s.Name, s.Description, s.Instructions)
	}

	return b.String()
}

// LastUserMessage returns the content of the most recent user-role
// message in messages, or "" if none.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
