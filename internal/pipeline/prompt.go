package pipeline

import (
	"fmt"
	"strings"

	"github.com/counselstack/veritas/internal/model"
)

// systemInstructions is the static half of the generation prompt. The
// numbered source list rides in a separate cacheable block.
const systemInstructions = `You are a legal research assistant. Answer strictly from the numbered sources provided.

Rules:
- Support every factual or legal assertion with a bracketed marker naming the source it came from, in the form [Source N].
- Quote reporter citations, case names, and statutes exactly as they appear in the sources.
- If the sources do not answer the question, say so plainly instead of speculating.
- Never cite an authority that is not among the sources.
- Respond with the answer text only, no preamble.`

// noSourcesAnswer is returned when retrieval finds nothing to ground an
// answer on.
const noSourcesAnswer = "No relevant sources were found for this question, so a grounded answer cannot be provided."

// providersExhaustedAnswer is returned when every configured generation
// provider failed.
const providersExhaustedAnswer = "Answer generation is temporarily unavailable. The retrieved sources were recorded; please retry shortly."

// refusalAnswer replaces an answer none of whose sources survived
// validation.
const refusalAnswer = "The retrieved sources could not be verified, so no answer can be given with confidence. See the flagged audit record for details."

// buildSourceContext renders passages as a numbered source list. The
// numbering starts at 1 and is what [Source N] markers resolve against,
// so the order here must match the passage order handed to validation.
func buildSourceContext(passages []model.RetrievedPassage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Source %d: %s", i+1, p.Source.Title)
		if p.Source.Citation != "" {
			fmt.Fprintf(&b, " (%s)", p.Source.Citation)
		}
		b.WriteString("\n")
		b.WriteString(p.Source.Content)
	}
	return b.String()
}

func buildRequest(query string, passages []model.RetrievedPassage, maxTokens int) GenerationRequest {
	return GenerationRequest{
		System:        systemInstructions,
		SourceContext: buildSourceContext(passages),
		Prompt:        query,
		MaxTokens:     maxTokens,
	}
}
