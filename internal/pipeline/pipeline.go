// Package pipeline implements the grounded-answer validation flow:
// retrieve, generate, extract citations, validate them concurrently,
// score, flag, correct, and gate for human review. Every run ends in a
// write-once audit record, whatever else fails along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/config"
	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/store"
	"github.com/counselstack/veritas/pkg/jina"
	"github.com/counselstack/veritas/pkg/notify"
)

// dlqMaxRetries is the retry budget given to dead-lettered writes.
const dlqMaxRetries = 5

// Pipeline wires the validation flow together. All collaborators come in
// through New; nothing reaches for globals except the process logger.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	embedder  jina.Client
	providers []Provider
	board     *notify.Board
	breakers  *resilience.BreakerSet

	now func() time.Time
}

// New assembles a Pipeline from its collaborators. board may be nil when
// reviewer notifications are not configured.
func New(cfg *config.Config, st store.Store, embedder jina.Client, providers []Provider, board *notify.Board) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		embedder:  embedder,
		providers: providers,
		board:     board,
		breakers:  resilience.NewBreakerSet(0, 0),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// QueryOptions tunes one pipeline run. Zero values fall back to the
// configured defaults.
type QueryOptions struct {
	TopK         int
	Jurisdiction string
	DocumentType model.DocumentType
}

// ProcessQuery runs one query through the full validation flow and
// returns an answer that is always safe to show: degraded, corrected, or
// flagged as needed, never silently partial. The only error is an empty
// query; everything downstream degrades instead of failing.
func (p *Pipeline) ProcessQuery(ctx context.Context, query string, opts QueryOptions) (*model.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("pipeline: empty query")
	}

	started := time.Now()
	log := zap.L().With(zap.String("query", truncate(query, 80)))
	log.Info("pipeline run started")

	passages := p.retrieve(ctx, query, opts)

	var (
		text     string
		degraded bool
		reason   string
	)
	if len(passages) == 0 {
		text, degraded, reason = noSourcesAnswer, true, "no sources found"
	} else {
		req := buildRequest(query, passages, p.cfg.Anthropic.MaxTokens)
		text, degraded = p.generateAnswer(ctx, req, nil)
		if degraded {
			reason = "all providers failed"
		}
	}

	run := p.evaluate(ctx, query, text, passages, degraded)
	answer := p.finalize(ctx, query, run, degraded, reason)

	log.Info("pipeline run finished",
		zap.String("record_id", answer.RecordID),
		zap.Float64("confidence", answer.Confidence.Overall),
		zap.Int("citations", len(answer.Citations)),
		zap.Int("flags", len(answer.Flags)),
		zap.Bool("corrected", answer.Corrected),
		zap.Bool("review_required", answer.ReviewRequired),
		zap.Duration("elapsed", time.Since(started)))
	return answer, nil
}

// runResult is the outcome of the evaluation stages for one answer text.
type runResult struct {
	text        string
	passages    []model.RetrievedPassage
	citations   []model.Citation
	validations []model.CitationValidation
	confidence  model.ConfidenceScore
	flags       []model.FlaggedContent
	corrected   bool
}

// evaluate runs extraction, validation, scoring, and flagging over an
// answer, applying at most one correction pass when flags demand
// removals. A corrected answer is re-extracted and re-validated so the
// audit record always describes the text that actually ships.
func (p *Pipeline) evaluate(ctx context.Context, query, text string, passages []model.RetrievedPassage, degraded bool) runResult {
	res := p.evaluateOnce(ctx, text, passages, degraded)
	if degraded || !anyRemoval(res.flags) {
		return res
	}

	correctedText, correctedPassages := p.correctionPass(ctx, query, text, res.flags, res.validations, passages)
	if correctedText == text {
		return res
	}

	out := p.evaluateOnce(ctx, correctedText, correctedPassages, degraded)
	out.corrected = true
	out.flags = append(out.flags, carriedFlags(res.flags)...)
	return out
}

// evaluateOnce is one extract-validate-score-flag cycle.
func (p *Pipeline) evaluateOnce(ctx context.Context, text string, passages []model.RetrievedPassage, degraded bool) runResult {
	citations := ExtractCitations(text)
	validations := p.validateCitations(ctx, citations, passages)
	conf := ScoreAnswer(passages, validations, p.now())
	flags := FlagAnswer(text, conf, citations, validations, p.cfg.Pipeline.StrictSimilarity, degraded)
	return runResult{
		text:        text,
		passages:    passages,
		citations:   citations,
		validations: validations,
		confidence:  conf,
		flags:       flags,
	}
}

// anyRemoval reports whether any flag calls for content removal.
func anyRemoval(flags []model.FlaggedContent) bool {
	for _, f := range flags {
		if f.RequiresRemoval {
			return true
		}
	}
	return false
}

// carriedFlags keeps the flags that triggered a correction on the final
// record. Their removal demand and spans are cleared: the content they
// pointed at is already gone from the corrected text.
func carriedFlags(flags []model.FlaggedContent) []model.FlaggedContent {
	var out []model.FlaggedContent
	for _, f := range flags {
		if !f.RequiresRemoval {
			continue
		}
		f.RequiresRemoval = false
		f.Span = nil
		f.Description = "corrected: " + f.Description
		out = append(out, f)
	}
	return out
}

// finalize assembles the audit record and the caller-facing answer,
// persists the record, and opens a review task when the gate fires.
func (p *Pipeline) finalize(ctx context.Context, query string, run runResult, degraded bool, degradedReason string) *model.Answer {
	decision := EvaluateGate(run.confidence, run.flags, p.cfg.Review.ConfidenceThreshold)

	state := model.ReviewNotReviewed
	if decision.ReviewRequired {
		state = model.ReviewPending
	}

	rec := &model.ValidationRecord{
		ID:          uuid.New().String(),
		Query:       query,
		Answer:      run.text,
		AnswerHash:  model.TextHash(run.text),
		Confidence:  run.confidence,
		Citations:   run.citations,
		Validations: run.validations,
		Flags:       run.flags,
		ReviewState: state,
		CreatedAt:   p.now(),
	}
	bundleHash, err := rec.ComputeBundleHash()
	if err != nil {
		zap.L().Error("bundle hash computation failed", zap.Error(err))
	}
	rec.BundleHash = bundleHash

	p.persistRecord(ctx, rec)

	answer := &model.Answer{
		RecordID:       rec.ID,
		Text:           run.text,
		Confidence:     run.confidence,
		Citations:      run.citations,
		Validations:    run.validations,
		Flags:          run.flags,
		Corrected:      run.corrected,
		ReviewRequired: decision.ReviewRequired,
		Degraded:       degraded,
		DegradedReason: degradedReason,
	}

	if decision.ReviewRequired {
		task := p.openReview(ctx, rec, decision)
		answer.ReviewTaskID = task.ID
	}
	return answer
}

// persistRecord writes the audit record, falling back to the dead-letter
// queue when the store is down. The run never fails for want of a write;
// the caller still gets the full bundle in the answer.
func (p *Pipeline) persistRecord(ctx context.Context, rec *model.ValidationRecord) {
	inserted, err := p.store.InsertRecord(ctx, rec)
	if err != nil {
		zap.L().Error("record persist failed, dead-lettering",
			zap.String("record_id", rec.ID),
			zap.Error(err))
		p.deadLetter(ctx, resilience.DLQKindValidationRecord, rec.ID, rec, err)
		return
	}
	if !inserted {
		zap.L().Info("identical bundle already persisted",
			zap.String("record_id", rec.ID),
			zap.String("bundle_hash", rec.BundleHash))
	}
}

// deadLetter queues a failed persistence write for the reconciler. A
// dead-letter write can itself fail; that is logged and dropped since the
// answer already carries the full bundle.
func (p *Pipeline) deadLetter(ctx context.Context, kind, id string, artifact any, cause error) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		zap.L().Error("dead-letter marshal failed",
			zap.String("kind", kind),
			zap.Error(err))
		return
	}
	now := p.now()
	entry := resilience.DLQEntry{
		ID:           id,
		Kind:         kind,
		Payload:      payload,
		Error:        cause.Error(),
		ErrorClass:   resilience.ClassifyError(cause),
		MaxRetries:   dlqMaxRetries,
		NextRetryAt:  now.Add(time.Minute),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := p.store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("dead-letter enqueue failed",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err))
	}
}

// truncate clips s to at most max bytes plus an ellipsis, backing up to
// a rune boundary so a multibyte character is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
