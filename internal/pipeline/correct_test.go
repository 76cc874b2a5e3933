package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/counselstack/veritas/internal/model"
)

func removalFlag(start, end int) model.FlaggedContent {
	return model.FlaggedContent{
		Type:            model.FlagInaccuracy,
		Severity:        model.SeverityHigh,
		RequiresRemoval: true,
		Span:            &model.Span{Start: start, End: end},
	}
}

func TestExciseFlaggedSpans_RemovesMarkedSpan(t *testing.T) {
	answer := "Keep this. REMOVE ME. Keep that."

	got := exciseFlaggedSpans(answer, []model.FlaggedContent{removalFlag(10, 21)})

	assert.Equal(t, "Keep this. Keep that.", got)
}

func TestExciseFlaggedSpans_MergesOverlappingSpans(t *testing.T) {
	got := exciseFlaggedSpans("abcdefghij", []model.FlaggedContent{removalFlag(2, 5), removalFlag(4, 7)})
	assert.Equal(t, "abhij", got)
}

func TestExciseFlaggedSpans_IgnoresFlagsWithoutRemoval(t *testing.T) {
	answer := "Nothing to cut here."
	flags := []model.FlaggedContent{
		{Type: model.FlagLowConfidence, Severity: model.SeverityHigh},
		{Type: model.FlagSemanticMismatch, Severity: model.SeverityMedium, Span: &model.Span{Start: 0, End: 7}},
	}

	assert.Equal(t, answer, exciseFlaggedSpans(answer, flags))
}

func TestExciseFlaggedSpans_ClipsSpanPastEnd(t *testing.T) {
	got := exciseFlaggedSpans("abcdef", []model.FlaggedContent{removalFlag(3, 50)})
	assert.Equal(t, "abc", got)
}

func TestCleanPassages_DropsFlaggedSources(t *testing.T) {
	passages := passagesOf(0.9, federalCase(1, "a"), federalCase(2, "b"))
	validations := []model.CitationValidation{
		{CitationID: "cite-1", SourceID: "src-1", Status: model.StatusVerified},
		{CitationID: "cite-2", SourceID: "src-2", Status: model.StatusFlagged},
	}

	clean := cleanPassages(passages, validations)

	require.Len(t, clean, 1)
	assert.Equal(t, "src-1", clean[0].Source.ID)
}

func TestCorrectionPass_ExcisesWhenEnoughSurvives(t *testing.T) {
	answer := "The duty of care is well settled in this circuit [Source 1]. BAD. More supported discussion follows here [Source 1]."
	start := strings.Index(answer, " BAD.")
	passages := passagesOf(0.9, federalCase(1, "The duty of care is well settled."))

	p := newTestPipeline(&mockStore{}, newStubEmbedder())
	text, kept := p.correctionPass(context.Background(), "duty of care?", answer,
		[]model.FlaggedContent{removalFlag(start, start+len(" BAD."))}, nil, passages)

	assert.NotContains(t, text, "BAD")
	assert.Contains(t, text, "[Source 1]. More supported discussion")
	assert.Equal(t, passages, kept)
}

func TestCorrectionPass_RegeneratesFromCleanSources(t *testing.T) {
	good := "Short lede [Source 1]."
	answer := good + " " + strings.Repeat("Unsupported claim repeated at length. ", 10)
	passages := passagesOf(0.9, federalCase(1, "The lede holding."), federalCase(2, "An unrelated holding."))
	validations := []model.CitationValidation{
		{CitationID: "cite-1", SourceID: "src-1", Status: model.StatusVerified},
		{CitationID: "cite-2", SourceID: "src-2", Status: model.StatusFlagged},
	}
	flags := []model.FlaggedContent{removalFlag(len(good), len(answer))}

	prov := &mockProvider{name: "anthropic"}
	var req GenerationRequest
	prov.On("Complete", mock.Anything, mock.AnythingOfType("pipeline.GenerationRequest")).
		Run(func(args mock.Arguments) { req = args.Get(1).(GenerationRequest) }).
		Return("Rewritten from the surviving source [Source 1].", nil)

	p := newTestPipeline(&mockStore{}, newStubEmbedder(), prov)
	text, kept := p.correctionPass(context.Background(), "q", answer, flags, validations, passages)

	prov.AssertExpectations(t)
	assert.Equal(t, "Rewritten from the surviving source [Source 1].", text)
	require.Len(t, kept, 1)
	assert.Equal(t, "src-1", kept[0].Source.ID)
	assert.Contains(t, req.SourceContext, "Defendant 1")
	assert.NotContains(t, req.SourceContext, "Defendant 2")
}

func TestCorrectionPass_RefusesWithoutCleanSources(t *testing.T) {
	answer := "Lede. " + strings.Repeat("Bad content everywhere. ", 10)
	passages := passagesOf(0.9, federalCase(1, "a"), federalCase(2, "b"))
	validations := []model.CitationValidation{
		{CitationID: "cite-1", SourceID: "src-1", Status: model.StatusFlagged},
		{CitationID: "cite-2", SourceID: "src-2", Status: model.StatusFlagged},
	}
	flags := []model.FlaggedContent{removalFlag(0, len(answer))}

	p := newTestPipeline(&mockStore{}, newStubEmbedder())
	text, kept := p.correctionPass(context.Background(), "q", answer, flags, validations, passages)

	assert.Equal(t, refusalAnswer, text)
	assert.Nil(t, kept)
}

func TestCorrectionPass_RefusesWhenRegenerationFails(t *testing.T) {
	answer := "Lede. " + strings.Repeat("Bad content everywhere. ", 10)
	passages := passagesOf(0.9, federalCase(1, "a"), federalCase(2, "b"))
	validations := []model.CitationValidation{
		{CitationID: "cite-2", SourceID: "src-2", Status: model.StatusFlagged},
	}
	flags := []model.FlaggedContent{removalFlag(0, len(answer))}

	prov := &mockProvider{name: "anthropic"}
	prov.On("Complete", mock.Anything, mock.Anything).Return("", assert.AnError)

	p := newTestPipeline(&mockStore{}, newStubEmbedder(), prov)
	text, kept := p.correctionPass(context.Background(), "q", answer, flags, validations, passages)

	assert.Equal(t, refusalAnswer, text)
	assert.Nil(t, kept)
}
