package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/config"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/pkg/anthropic"
	"github.com/counselstack/veritas/pkg/perplexity"
)

// GenerationRequest carries one prompt through any provider.
type GenerationRequest struct {
	System        string
	SourceContext string
	Prompt        string
	MaxTokens     int
}

// Provider produces answer text from a generation request. The pipeline
// tries providers in configured order and falls over on failure; each
// provider runs behind its own circuit breaker.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req GenerationRequest) (string, error)
	Stream(ctx context.Context, req GenerationRequest, onDelta func(text string)) (string, error)
}

// ProvidersFromConfig assembles the ordered provider chain. Providers
// whose client is nil (unconfigured key) are skipped, as are unknown
// names, each with a warning.
func ProvidersFromConfig(cfg *config.Config, ac anthropic.Client, pc perplexity.Client) []Provider {
	var providers []Provider
	for _, name := range cfg.Pipeline.ProviderOrder {
		switch name {
		case "anthropic":
			if ac == nil {
				zap.L().Warn("anthropic in provider order but not configured")
				continue
			}
			providers = append(providers, NewAnthropicProvider(ac, cfg.Anthropic))
		case "perplexity":
			if pc == nil {
				zap.L().Warn("perplexity in provider order but not configured")
				continue
			}
			providers = append(providers, NewPerplexityProvider(pc, cfg.Perplexity))
		default:
			zap.L().Warn("unknown provider in order list", zap.String("provider", name))
		}
	}
	return providers
}

type anthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewAnthropicProvider wraps an Anthropic client as the primary answer
// provider. Source context goes into a cached system block since the
// generation and correction passes share it.
func NewAnthropicProvider(client anthropic.Client, cfg config.AnthropicConfig) Provider {
	return &anthropicProvider{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) request(req GenerationRequest) anthropic.MessageRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	return anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: int64(maxTokens),
		System:    anthropic.BuildCachedSystemBlocks(req.System, req.SourceContext),
		Messages:  []anthropic.Message{{Role: "user", Content: req.Prompt}},
	}
}

func (p *anthropicProvider) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateMessage(ctx, p.request(req))
	if err != nil {
		return "", eris.Wrap(err, "pipeline: anthropic completion")
	}
	resp.Usage.LogCost(p.model, "generate")
	return resp.Text(), nil
}

func (p *anthropicProvider) Stream(ctx context.Context, req GenerationRequest, onDelta func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.StreamMessage(ctx, p.request(req), onDelta)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: anthropic stream")
	}
	resp.Usage.LogCost(p.model, "generate")
	return resp.Text(), nil
}

type perplexityProvider struct {
	client  perplexity.Client
	model   string
	timeout time.Duration
}

// NewPerplexityProvider wraps a Perplexity client as a fallback answer
// provider.
func NewPerplexityProvider(client perplexity.Client, cfg config.PerplexityConfig) Provider {
	return &perplexityProvider{
		client:  client,
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

func (p *perplexityProvider) Name() string { return "perplexity" }

func (p *perplexityProvider) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	system := req.System
	if req.SourceContext != "" {
		system += "\n\n" + req.SourceContext
	}
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: perplexity completion")
	}
	return resp.Text(), nil
}

// Stream satisfies Provider; the chat-completions client has no streaming
// endpoint, so the full completion arrives as a single delta.
func (p *perplexityProvider) Stream(ctx context.Context, req GenerationRequest, onDelta func(string)) (string, error) {
	text, err := p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	onDelta(text)
	return text, nil
}

// generateAnswer runs the provider chain for one request. Each provider
// gets a retry budget behind its breaker; the first success wins. When
// every provider fails the answer degrades rather than erroring, so the
// caller still receives an auditable result.
func (p *Pipeline) generateAnswer(ctx context.Context, req GenerationRequest, onDelta func(string)) (string, bool) {
	for _, prov := range p.providers {
		text, err := p.completeWith(ctx, prov, req, onDelta)
		if err != nil {
			zap.L().Warn("provider failed, falling over",
				zap.String("provider", prov.Name()),
				zap.Error(err))
			continue
		}
		parsed, perr := ParseAnswer(text)
		if perr != nil {
			zap.L().Warn("unparseable completion, keeping raw text",
				zap.String("provider", prov.Name()),
				zap.Error(perr))
			return strings.TrimSpace(perr.Raw), false
		}
		return parsed.Text, false
	}

	zap.L().Warn("all answer providers exhausted, degrading")
	return providersExhaustedAnswer, true
}

func (p *Pipeline) completeWith(ctx context.Context, prov Provider, req GenerationRequest, onDelta func(string)) (string, error) {
	retry := resilience.APIRetry()
	retry.OnAttempt = resilience.Logged(prov.Name(), "complete")
	if onDelta != nil {
		// A replayed stream would duplicate chunks already delivered,
		// so streaming gets a single attempt per provider.
		retry.Attempts = 1
	}

	breaker := p.breakers.For(prov.Name())
	return resilience.BreakerDo(ctx, breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
			if onDelta != nil {
				return prov.Stream(ctx, req, onDelta)
			}
			return prov.Complete(ctx, req)
		})
	})
}
