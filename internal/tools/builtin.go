package tools

import (
	"github.com/Aman-CERP/localagent/internal/search"
	"github.com/Aman-CERP/localagent/internal/store"
)

// RegisterBuiltins registers the fixed built-in tool list into r:
// search, read_file, list_directory, index_status, write_file,
// run_command.
func RegisterBuiltins(r *Registry, metadata store.MetadataStore, engine search.SearchEngine) error {
	type def struct {
		tool    Tool
		handler Handler
	}

	searchTool, searchHandler := NewSearchTool(engine)
	readTool, readHandler := NewReadFileTool()
	listTool, listHandler := NewListDirectoryTool()
	statusTool, statusHandler := NewIndexStatusTool(metadata)
	writeTool, writeHandler := NewWriteFileTool()
	runTool, runHandler := NewRunCommandTool()

	defs := []def{
		{searchTool, searchHandler},
		{readTool, readHandler},
		{listTool, listHandler},
		{statusTool, statusHandler},
		{writeTool, writeHandler},
		{runTool, runHandler},
	}

	for _, d := range defs {
		if err := r.Register(d.tool, d.handler); err != nil {
			return err
		}
	}
	return nil
}
