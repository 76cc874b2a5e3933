package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/counselstack/veritas/internal/model"
)

// EventType tags one streaming event.
type EventType string

const (
	EventSourcesFound       EventType = "sources_found"
	EventChunk              EventType = "chunk"
	EventValidationComplete EventType = "validation_complete"
	EventDone               EventType = "done"
	EventError              EventType = "error"
)

// Event is one message on a streaming query channel. The payload field
// matching Type is set; the rest are zero.
type Event struct {
	Type        EventType
	Sources     []model.RetrievedPassage
	Chunk       string
	Validations []model.CitationValidation
	Answer      *model.Answer
	Err         error
}

// StreamQuery runs the same flow as ProcessQuery but emits progress as it
// happens: sources when retrieval lands, text chunks as the model
// produces them, validations once the concurrent checks join, then the
// final answer. When a correction rewrites the answer, the done event's
// text supersedes the streamed chunks. The channel closes after the done
// or error event; a canceled context just stops the stream.
func (p *Pipeline) StreamQuery(ctx context.Context, query string, opts QueryOptions) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		p.streamRun(ctx, query, opts, events)
	}()
	return events
}

func (p *Pipeline) streamRun(ctx context.Context, query string, opts QueryOptions, events chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		emit(Event{Type: EventError, Err: eris.New("pipeline: empty query")})
		return
	}

	passages := p.retrieve(ctx, query, opts)
	if !emit(Event{Type: EventSourcesFound, Sources: passages}) {
		return
	}

	var (
		text     string
		degraded bool
		reason   string
	)
	if len(passages) == 0 {
		text, degraded, reason = noSourcesAnswer, true, "no sources found"
		if !emit(Event{Type: EventChunk, Chunk: text}) {
			return
		}
	} else {
		req := buildRequest(query, passages, p.cfg.Anthropic.MaxTokens)
		text, degraded = p.generateAnswer(ctx, req, func(delta string) {
			emit(Event{Type: EventChunk, Chunk: delta})
		})
		if degraded {
			reason = "all providers failed"
			if !emit(Event{Type: EventChunk, Chunk: text}) {
				return
			}
		}
	}

	run := p.evaluate(ctx, query, text, passages, degraded)
	if !emit(Event{Type: EventValidationComplete, Validations: run.validations}) {
		return
	}

	answer := p.finalize(ctx, query, run, degraded, reason)
	emit(Event{Type: EventDone, Answer: answer})
}
