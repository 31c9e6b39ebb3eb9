package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/localagent/internal/watcher"
)

// WatchRoot runs a debounced recursive watcher over root and feeds its
// events back through the pipeline: changed files re-run the
// single-file algorithm (a no-op when bytes are unchanged), removed
// files are deleted from the store. Events on directories, hidden
// files, and unsupported extensions are ignored. Blocks until ctx is
// cancelled.
func (p *Pipeline) WatchRoot(ctx context.Context, root string) error {
	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}
	defer w.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				for _, ev := range batch {
					p.handleWatchEvent(ctx, root, ev)
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				p.log.Warn("watcher error", slog.String("root", root), slog.Any("error", err))
			}
		}
	}()

	return w.Start(ctx, root)
}

func (p *Pipeline) handleWatchEvent(ctx context.Context, root string, ev watcher.FileEvent) {
	if ev.IsDir {
		return
	}
	name := filepath.Base(ev.Path)
	if strings.HasPrefix(name, ".") {
		return
	}
	if !p.supported(strings.ToLower(filepath.Ext(name))) {
		return
	}

	abs := ev.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, ev.Path)
	}

	switch ev.Operation {
	case watcher.OpDelete, watcher.OpRename:
		if err := p.RemovePath(ctx, abs); err != nil {
			p.log.Warn("failed to remove document", slog.String("path", abs), slog.Any("error", err))
		}
	default:
		if err := p.IngestFile(ctx, abs); err != nil {
			p.log.Warn("failed to re-ingest changed file", slog.String("path", abs), slog.Any("error", err))
		}
	}
}

func (p *Pipeline) supported(extension string) bool {
	for _, ext := range p.extractor.SupportedExtensions() {
		if ext == extension {
			return true
		}
	}
	return false
}
