package cmd

import (
	"context"
	"time"

	"github.com/Aman-CERP/localagent/internal/agent"
	"github.com/Aman-CERP/localagent/internal/config"
	"github.com/Aman-CERP/localagent/internal/daemon"
	"github.com/Aman-CERP/localagent/internal/embed"
	"github.com/Aman-CERP/localagent/internal/ingest"
	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/search"
	"github.com/Aman-CERP/localagent/internal/settings"
	"github.com/Aman-CERP/localagent/internal/store"
	"github.com/Aman-CERP/localagent/internal/tools"
)

// inlineEmbedTimeout bounds how long a one-shot CLI command waits for
// the embedding backend before proceeding keyword-only.
const inlineEmbedTimeout = 30 * time.Second

// daemonClient returns a connected client when a daemon answers on the
// configured socket, nil otherwise.
func daemonClient(ctx context.Context) *daemon.Client {
	client := daemon.NewClient(cfg.Daemon.SocketPath)
	pingCtx, cancel := context.WithTimeout(ctx, daemon.DialTimeout)
	defer cancel()
	if client.IsRunning(pingCtx) {
		return client
	}
	return nil
}

// localRuntime is the inline fallback when no daemon is running: the
// same components the daemon hosts, built for one command and torn
// down after.
type localRuntime struct {
	Config   config.Config
	Settings settings.Settings
	Store    *store.Store
	Embedder *embed.Service
	Engine   *search.Engine
	Pipeline *ingest.Pipeline
}

// newLocalRuntime builds the inline components. waitForEmbedder blocks
// startup on the embedding backend (worth it for indexing, pointless
// for keyword search of an already-built index).
func newLocalRuntime(ctx context.Context, waitForEmbedder bool) (*localRuntime, error) {
	userSettings, err := settings.Load(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	svc := embed.NewService(embed.ServiceConfig{
		ArtifactsDir:  cfg.ArtifactsDir(),
		DisableLocal:  cfg.Embeddings.DisableLocal,
		DisableRemote: cfg.Embeddings.DisableRemote,
		Remote: embed.RemoteConfig{
			Host:  cfg.Embeddings.RemoteHost,
			Model: cfg.Embeddings.RemoteModel,
		},
	})

	if waitForEmbedder {
		waitCtx, cancel := context.WithTimeout(ctx, inlineEmbedTimeout)
		_ = svc.WaitReady(waitCtx)
		cancel()
	}

	st, err := store.Open(cfg.DataDir, svc.Dimensions())
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	pipeline := ingest.New(st, ingest.WithEmbedder(svc))
	if err := pipeline.SyncEmbeddingIdentity(ctx); err != nil {
		_ = st.Close()
		_ = svc.Close()
		return nil, err
	}

	return &localRuntime{
		Config:   cfg,
		Settings: userSettings,
		Store:    st,
		Embedder: svc,
		Engine:   search.NewEngine(st, search.WithQueryEmbedder(svc)),
		Pipeline: pipeline,
	}, nil
}

// AgentEngine wires the agent loop over the inline components.
func (r *localRuntime) AgentEngine() (*agent.Engine, error) {
	backend := model.Shared(model.BackendConfig{
		ArtifactsDir: r.Config.ArtifactsDir(),
		OllamaHost:   r.Config.Model.OllamaHost,
		ForceOllama:  r.Config.Model.ForceOllama,
	})
	backend.EnsureLoaded(r.Settings.Agent.ModelID)

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, r.Store, r.Engine); err != nil {
		return nil, err
	}

	eng := agent.NewEngine(backend, registry, r.Store)
	eng.SkillsDirectory = r.Settings.Agent.SkillsDirectory
	if eng.SkillsDirectory == "" {
		eng.SkillsDirectory = r.Config.SkillsDir()
	}
	return eng, nil
}

// Close releases the runtime's resources.
func (r *localRuntime) Close() {
	_ = r.Store.Close()
	_ = r.Embedder.Close()
}
