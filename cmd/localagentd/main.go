// Command localagentd is the long-running daemon: it owns the Document
// Store, embedding service, file watcher, agent runtime and event bus,
// and serves the CLI over a unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aman-CERP/localagent/internal/agent"
	"github.com/Aman-CERP/localagent/internal/config"
	"github.com/Aman-CERP/localagent/internal/daemon"
	"github.com/Aman-CERP/localagent/internal/embed"
	"github.com/Aman-CERP/localagent/internal/eventbus"
	"github.com/Aman-CERP/localagent/internal/ingest"
	"github.com/Aman-CERP/localagent/internal/logging"
	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/search"
	"github.com/Aman-CERP/localagent/internal/settings"
	"github.com/Aman-CERP/localagent/internal/store"
	"github.com/Aman-CERP/localagent/internal/tools"
)

// embedReadyTimeout bounds how long startup waits for the embedding
// backend before opening the store keyword-only.
const embedReadyTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "localagentd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logger, closeLogs, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	defer closeLogs()
	slog.SetDefault(logger)

	userSettings, err := settings.Load(cfg.DataDir)
	if err != nil {
		return err
	}

	pidfile := daemon.NewPIDFile(cfg.Daemon.PIDFile)
	if err := pidfile.Write(); err != nil {
		return fmt.Errorf("another daemon may be running: %w", err)
	}
	defer func() { _ = pidfile.Remove() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Embedding backend loads in the background; the store's vector
	// index dimension follows whichever backend settles first.
	embedSvc := embed.NewService(embed.ServiceConfig{
		ArtifactsDir:  cfg.ArtifactsDir(),
		DisableLocal:  cfg.Embeddings.DisableLocal,
		DisableRemote: cfg.Embeddings.DisableRemote,
		Remote: embed.RemoteConfig{
			Host:  cfg.Embeddings.RemoteHost,
			Model: cfg.Embeddings.RemoteModel,
		},
	})
	defer embedSvc.Close()

	waitCtx, cancelWait := context.WithTimeout(ctx, embedReadyTimeout)
	if err := embedSvc.WaitReady(waitCtx); err != nil {
		slog.Warn("embedding backend not settled at startup, continuing keyword-only")
	}
	cancelWait()

	st, err := store.Open(cfg.DataDir, embedSvc.Dimensions())
	if err != nil {
		return err
	}
	defer st.Close()

	pipeline := ingest.New(st, ingest.WithEmbedder(embedSvc))
	if err := pipeline.SyncEmbeddingIdentity(ctx); err != nil {
		slog.Warn("embedding identity sync failed", slog.Any("error", err))
	}

	engine := search.NewEngine(st, search.WithQueryEmbedder(embedSvc))

	backend := model.Shared(model.BackendConfig{
		ArtifactsDir: cfg.ArtifactsDir(),
		OllamaHost:   cfg.Model.OllamaHost,
		ForceOllama:  cfg.Model.ForceOllama,
	})
	backend.EnsureLoaded(userSettings.Agent.ModelID)

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, st, engine); err != nil {
		return err
	}

	agentEngine := agent.NewEngine(backend, registry, st)
	agentEngine.SkillsDirectory = userSettings.Agent.SkillsDirectory
	if agentEngine.SkillsDirectory == "" {
		agentEngine.SkillsDirectory = cfg.SkillsDir()
	}

	bus := eventbus.New(0)

	for _, root := range userSettings.WatchedDirectories {
		root := root
		go func() {
			if err := pipeline.WatchRoot(ctx, root); err != nil && ctx.Err() == nil {
				slog.Warn("watcher exited", slog.String("root", root), slog.Any("error", err))
			}
		}()
	}

	srv := daemon.NewServer(cfg.Daemon.SocketPath, daemon.Components{
		Store:    st,
		Embedder: embedSvc,
		Engine:   engine,
		Pipeline: pipeline,
		Agent:    agentEngine,
		Backend:  backend,
		Bus:      bus,
		Settings: userSettings,
		Watched:  userSettings.WatchedDirectories,
	})
	return srv.ListenAndServe(ctx)
}
