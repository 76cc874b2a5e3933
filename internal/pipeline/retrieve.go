package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/pkg/jina"
)

// overfetchFactor is how many extra candidates to pull when a post-search
// filter may discard some.
const overfetchFactor = 3

// retrieve embeds the query and pulls the top-K most similar sources.
// Retrieval failure degrades to an empty passage list instead of aborting
// the run; downstream stages treat that as a zero-confidence answer.
func (p *Pipeline) retrieve(ctx context.Context, query string, opts QueryOptions) []model.RetrievedPassage {
	topK := opts.TopK
	if topK <= 0 {
		topK = p.cfg.Pipeline.TopK
	}
	if topK < 1 {
		topK = 1
	}

	fetchK := topK
	if opts.Jurisdiction != "" || opts.DocumentType != "" {
		fetchK = topK * overfetchFactor
	}

	retry := resilience.APIRetry()
	retry.OnAttempt = resilience.Logged("jina", "embed query")

	vecs, err := resilience.BreakerDo(ctx, p.breakers.For("jina"), func(ctx context.Context) ([][]float64, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([][]float64, error) {
			return p.embedder.Embed(ctx, []string{query}, jina.TaskQuery)
		})
	})
	if err != nil || len(vecs) == 0 {
		zap.L().Warn("query embedding failed, no sources retrieved", zap.Error(err))
		return nil
	}

	passages, err := p.store.SearchSources(ctx, vecs[0], fetchK)
	if err != nil {
		zap.L().Warn("source search failed, no sources retrieved", zap.Error(err))
		return nil
	}

	passages = filterPassages(passages, opts)
	if len(passages) > topK {
		passages = passages[:topK]
	}

	zap.L().Debug("sources retrieved",
		zap.Int("count", len(passages)),
		zap.Int("top_k", topK))
	return passages
}

// filterPassages applies the optional jurisdiction and document-type
// filters to search results.
func filterPassages(passages []model.RetrievedPassage, opts QueryOptions) []model.RetrievedPassage {
	if opts.Jurisdiction == "" && opts.DocumentType == "" {
		return passages
	}
	out := make([]model.RetrievedPassage, 0, len(passages))
	for _, pass := range passages {
		if opts.Jurisdiction != "" && !strings.EqualFold(pass.Source.Jurisdiction, opts.Jurisdiction) {
			continue
		}
		if opts.DocumentType != "" && pass.Source.DocumentType != opts.DocumentType {
			continue
		}
		out = append(out, pass)
	}
	return out
}
