package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/counselstack/veritas/internal/pipeline"
	"github.com/counselstack/veritas/internal/review"
	"github.com/counselstack/veritas/internal/store"
	anthropicpkg "github.com/counselstack/veritas/pkg/anthropic"
	"github.com/counselstack/veritas/pkg/jina"
	"github.com/counselstack/veritas/pkg/notify"
	"github.com/counselstack/veritas/pkg/perplexity"
)

// env bundles the wired collaborators a command needs.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Reviews  *review.Manager
	Embedder jina.Client
	Board    *notify.Board
}

// Close releases the store connection.
func (e *env) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "veritas.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newEmbedder() jina.Client {
	return jina.NewClient(cfg.Embeddings.Key,
		jina.WithBaseURL(cfg.Embeddings.BaseURL),
		jina.WithModel(cfg.Embeddings.Model),
		jina.WithDimensions(cfg.Embeddings.Dimensions),
		jina.WithRateLimit(cfg.Embeddings.RateRPS),
	)
}

func newBoard() *notify.Board {
	if cfg.Notify.NotionToken == "" || cfg.Notify.ReviewDB == "" {
		return nil
	}
	return notify.NewBoard(notify.NewClient(cfg.Notify.NotionToken), cfg.Notify.ReviewDB)
}

// initPipeline builds the full pipeline environment: store, embeddings,
// provider chain, review board.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var ac anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		ac = anthropicpkg.NewClient(cfg.Anthropic.Key)
	}
	var pc perplexity.Client
	if cfg.Perplexity.Key != "" {
		pc = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
	}

	embedder := newEmbedder()
	board := newBoard()
	providers := pipeline.ProvidersFromConfig(cfg, ac, pc)

	return &env{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, embedder, providers, board),
		Reviews:  review.NewManager(st, board),
		Embedder: embedder,
		Board:    board,
	}, nil
}
