package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/vector"
	"github.com/counselstack/veritas/pkg/jina"
)

// Verification thresholds. verifiedSimilarity is the floor for marking a
// citation verified; the stricter bar in PipelineConfig.StrictSimilarity
// only raises flags and never changes verification itself.
const (
	verifiedSimilarity = 0.5
	minAuthority       = 30.0
)

// validateCitations checks every extracted citation against the retrieved
// passages and returns one validation per citation, in citation order.
// Citations validate concurrently up to the configured limit; the full
// set joins before anything downstream reads it.
func (p *Pipeline) validateCitations(ctx context.Context, citations []model.Citation, passages []model.RetrievedPassage) []model.CitationValidation {
	if len(citations) == 0 {
		return nil
	}

	passageVecs := p.embedPassages(ctx, passages)
	now := p.now()

	results := make([]model.CitationValidation, len(citations))
	g, gctx := errgroup.WithContext(ctx)
	limit := p.cfg.Pipeline.ValidationConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, cite := range citations {
		g.Go(func() error {
			results[i] = p.validateOne(gctx, cite, passages, passageVecs, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		zap.L().Warn("citation validation interrupted", zap.Error(err))
	}
	return results
}

// embedPassages embeds every passage's content in one batch call. On
// failure after retries the run proceeds without vectors; similarity then
// reads zero and affected citations flag instead of verifying.
func (p *Pipeline) embedPassages(ctx context.Context, passages []model.RetrievedPassage) [][]float64 {
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, len(passages))
	for i, pass := range passages {
		texts[i] = pass.Source.Content
	}

	retry := resilience.APIRetry()
	retry.OnAttempt = resilience.Logged("jina", "embed passages")

	vecs, err := resilience.BreakerDo(ctx, p.breakers.For("jina"), func(ctx context.Context) ([][]float64, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([][]float64, error) {
			return p.embedder.Embed(ctx, texts, jina.TaskPassage)
		})
	})
	if err != nil || len(vecs) != len(passages) {
		zap.L().Warn("passage embedding failed, similarity will read zero",
			zap.Int("passages", len(passages)),
			zap.Error(err))
		return nil
	}
	return vecs
}

// embedContext embeds one citation's surrounding text for comparison with
// its source. Returns nil when the embedding service is unavailable.
func (p *Pipeline) embedContext(ctx context.Context, cite model.Citation) []float64 {
	retry := resilience.APIRetry()
	retry.OnAttempt = resilience.Logged("jina", "embed citation context")

	vecs, err := resilience.BreakerDo(ctx, p.breakers.For("jina"), func(ctx context.Context) ([][]float64, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([][]float64, error) {
			return p.embedder.Embed(ctx, []string{cite.Context}, jina.TaskQuery)
		})
	})
	if err != nil || len(vecs) == 0 {
		zap.L().Warn("citation context embedding failed",
			zap.String("citation", cite.ID),
			zap.Error(err))
		return nil
	}
	return vecs[0]
}

// validateOne resolves a citation to its source and checks integrity,
// textual support, semantic similarity, and authority. A citation that
// resolves nowhere is flagged with zero similarity and zero authority.
func (p *Pipeline) validateOne(ctx context.Context, cite model.Citation, passages []model.RetrievedPassage, passageVecs [][]float64, now time.Time) model.CitationValidation {
	val := model.CitationValidation{CitationID: cite.ID, Status: model.StatusFlagged}

	ctxVec := p.embedContext(ctx, cite)

	idx, ok := resolveSource(cite, passages, ctxVec, passageVecs)
	if !ok {
		zap.L().Debug("citation resolved to no source", zap.String("citation", cite.ID))
		return val
	}

	src := passages[idx].Source
	val.SourceID = src.ID

	recomputed := model.SourceHash(src)
	val.ContentHash = recomputed
	val.HashIntact = src.ContentHash == "" || recomputed == src.ContentHash

	val.TextualMatch = textualMatch(cite, src)

	if ctxVec != nil && idx < len(passageVecs) {
		val.Similarity = clamp(vector.Cosine(ctxVec, passageVecs[idx]), 0, 1)
	}

	val.Authority = AuthorityScore(src, now)

	if val.HashIntact && val.Similarity >= verifiedSimilarity && val.Authority >= minAuthority {
		val.Status = model.StatusVerified
	}
	return val
}

// resolveSource finds the passage a citation refers to. Marker citations
// resolve by their 1-based index into the passage list. Everything else
// resolves to the passage whose embedding sits closest to the citation's
// context, falling back to a plain-text containment scan when vectors are
// unavailable.
func resolveSource(cite model.Citation, passages []model.RetrievedPassage, ctxVec []float64, passageVecs [][]float64) (int, bool) {
	if len(passages) == 0 {
		return 0, false
	}

	if cite.Kind == model.CitationMarker {
		idx := cite.SourceIndex - 1
		if idx < 0 || idx >= len(passages) {
			return 0, false
		}
		return idx, true
	}

	if ctxVec != nil && len(passageVecs) == len(passages) {
		best, bestSim := 0, -1.0
		for i, pv := range passageVecs {
			if sim := vector.Cosine(ctxVec, pv); sim > bestSim {
				best, bestSim = i, sim
			}
		}
		return best, true
	}

	raw := joinWords(cite.Raw)
	for i, pass := range passages {
		if strings.Contains(joinWords(pass.Source.Content), raw) ||
			strings.Contains(joinWords(pass.Source.Citation), raw) {
			return i, true
		}
	}
	return 0, false
}

// textualMatch checks whether the text the answer attributes to a source
// actually appears there. Reporter, case-name, and statute citations must
// occur as a contiguous phrase in the source content or its official
// citation string. Marker citations carry prose rather than a quotable
// string, so they match when at least half the words around the marker
// appear in the source.
func textualMatch(cite model.Citation, src model.Source) bool {
	if cite.Kind != model.CitationMarker {
		raw := joinWords(cite.Raw)
		if raw == "" {
			return false
		}
		return strings.Contains(joinWords(src.Content), raw) ||
			strings.Contains(joinWords(src.Citation), raw)
	}

	claim := markerPattern.ReplaceAllString(cite.Context, " ")
	words := wordsOf(claim)
	if len(words) == 0 {
		return false
	}
	content := make(map[string]bool)
	for _, w := range wordsOf(src.Content) {
		content[w] = true
	}
	hits := 0
	for _, w := range words {
		if content[w] {
			hits++
		}
	}
	return hits*2 >= len(words)
}

// wordsOf lowercases and splits text, trimming punctuation from word
// edges and dropping tokens with no letters or digits left.
func wordsOf(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func joinWords(text string) string {
	return strings.Join(wordsOf(text), " ")
}
