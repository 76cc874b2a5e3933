package pipeline

import (
	"fmt"
	"time"

	"github.com/counselstack/veritas/internal/config"
	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/store"
	"github.com/counselstack/veritas/pkg/jina"
)

// testNow is the fixed clock every pipeline test runs on.
var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Anthropic.Model = "claude-sonnet-4-5-20250929"
	cfg.Anthropic.MaxTokens = 2048
	cfg.Anthropic.TimeoutSecs = 60
	cfg.Perplexity.Model = "sonar-pro"
	cfg.Perplexity.TimeoutSecs = 60
	cfg.Pipeline.TopK = 5
	cfg.Pipeline.ValidationConcurrency = 4
	cfg.Pipeline.StrictSimilarity = 0.8
	cfg.Pipeline.ProviderOrder = []string{"anthropic", "perplexity"}
	cfg.Review.ConfidenceThreshold = 75
	cfg.Review.SLAHours = 24
	cfg.Review.DefaultAssignee = "legal-review-team"
	return cfg
}

func newTestPipeline(st store.Store, embedder jina.Client, providers ...Provider) *Pipeline {
	return &Pipeline{
		cfg:       testConfig(),
		store:     st,
		embedder:  embedder,
		providers: providers,
		breakers:  resilience.NewBreakerSet(0, 0),
		now:       func() time.Time { return testNow },
	}
}

// federalCase builds a recent circuit-court opinion whose content hash is
// intact. Content echoes the holding so marker contexts overlap it.
func federalCase(n int, holding string) model.Source {
	src := model.Source{
		ID:           fmt.Sprintf("src-%d", n),
		Title:        fmt.Sprintf("United States v. Defendant %d", n),
		Citation:     fmt.Sprintf("%d F.3d %d", 900+n, 100*n),
		Court:        model.CourtCircuit,
		DocumentType: model.DocCaseLaw,
		Jurisdiction: "federal",
		PublishedAt:  time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC),
		Content:      holding,
	}
	src.ContentHash = model.SourceHash(src)
	return src
}

// secondarySource builds an undated treatise-style source.
func secondarySource(id, title, content string) model.Source {
	src := model.Source{
		ID:           id,
		Title:        title,
		Citation:     title,
		DocumentType: model.DocSecondary,
		Content:      content,
	}
	src.ContentHash = model.SourceHash(src)
	return src
}

func passagesOf(relevance float64, sources ...model.Source) []model.RetrievedPassage {
	out := make([]model.RetrievedPassage, len(sources))
	for i, s := range sources {
		out[i] = model.RetrievedPassage{Source: s, Relevance: relevance}
	}
	return out
}
