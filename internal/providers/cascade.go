package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/util"

	"golang.org/x/time/rate"
)

// Cascade drives the provider fallback policy: providers are tried in
// priority order; rate and transient failures are retried with exponential
// backoff inside the same provider, everything else moves on to the next
// one. A batch never switches provider mid-batch, so all vectors of one
// call share a vector space.
type Cascade struct {
	manager        *Manager
	maxAttempts    int
	attemptTimeout time.Duration
	baseBackoff    time.Duration
	embedLimiters  []*rate.Limiter
	llmLimiters    []*rate.Limiter
	log            *slog.Logger

	// sleep is swappable so tests run without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

type CascadeOptions struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	// RequestsPerSecond bounds the client-side call rate per provider.
	RequestsPerSecond float64
}

func NewCascade(m *Manager, opts CascadeOptions, log *slog.Logger) *Cascade {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 60 * time.Second
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Cascade{
		manager:        m,
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		baseBackoff:    opts.BaseBackoff,
		log:            log,
		sleep:          sleepCtx,
	}
	for range m.EmbedProviders() {
		c.embedLimiters = append(c.embedLimiters, rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1))
	}
	for range m.LLMProviders() {
		c.llmLimiters = append(c.llmLimiters, rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1))
	}
	return c
}

// EmbedBatch embeds texts through the cascade. preferred, when non-empty,
// names the provider to try first (the one a document was originally
// embedded with).
func (c *Cascade) EmbedBatch(ctx context.Context, operation string, texts []string, preferred string) ([][]float32, ProviderInfo, error) {
	if len(texts) == 0 {
		return nil, ProviderInfo{}, fmt.Errorf("no texts to embed")
	}
	var lastErr error
	for _, idx := range c.manager.EmbedOrder(preferred) {
		named := c.manager.EmbedProviders()[idx]
		vectors, info, err := c.tryEmbedProvider(ctx, idx, named, EmbedRequest{Operation: operation, Inputs: texts})
		if err == nil {
			return vectors, info, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no embedding providers configured")
	}
	c.log.Error("embedding cascade exhausted", "operation", operation, "err", lastErr)
	return nil, ProviderInfo{}, fmt.Errorf("%w: %v", util.ErrEmbeddingUnavailable, lastErr)
}

// Embed embeds a single text; same policy as EmbedBatch.
func (c *Cascade) Embed(ctx context.Context, operation, text, preferred string) ([]float32, ProviderInfo, error) {
	vectors, info, err := c.EmbedBatch(ctx, operation, []string{text}, preferred)
	if err != nil {
		return nil, info, err
	}
	return vectors[0], info, nil
}

func (c *Cascade) tryEmbedProvider(ctx context.Context, idx int, named NamedEmbedProvider, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.embedLimiters[idx].Wait(ctx); err != nil {
			return nil, ProviderInfo{}, err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		vectors, info, err := named.Provider.Embed(attemptCtx, req)
		cancel()
		if err == nil {
			if len(vectors) != len(req.Inputs) {
				return nil, info, fmt.Errorf("provider %s returned %d vectors for %d inputs", named.Ref.Name, len(vectors), len(req.Inputs))
			}
			dim := named.Provider.Dimension()
			for _, v := range vectors {
				if len(v) != dim {
					return nil, info, fmt.Errorf("provider %s returned vector of dimension %d, declared %d", named.Ref.Name, len(v), dim)
				}
			}
			return vectors, info, nil
		}
		lastErr = err
		errType := ClassifyError(err)
		c.log.Warn("embed attempt failed",
			"provider", named.Ref.Name, "attempt", attempt, "class", string(errType), "err", err)
		if !Retriable(errType) || attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return nil, ProviderInfo{}, err
		}
	}
	return nil, ProviderInfo{}, lastErr
}

// Generate runs the LLM provider list with the same retry policy.
func (c *Cascade) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var lastErr error
	for idx, named := range c.manager.LLMProviders() {
		resp, info, err := c.tryLLMProvider(ctx, idx, named, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no llm providers configured")
	}
	c.log.Error("llm cascade exhausted", "operation", req.Operation, "err", lastErr)
	return GenerateResponse{}, ProviderInfo{}, fmt.Errorf("%w: %v", util.ErrLLMUnavailable, lastErr)
}

func (c *Cascade) tryLLMProvider(ctx context.Context, idx int, named NamedLLMProvider, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.llmLimiters[idx].Wait(ctx); err != nil {
			return GenerateResponse{}, ProviderInfo{}, err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		resp, info, err := named.Provider.Generate(attemptCtx, req)
		cancel()
		if err == nil {
			return resp, info, nil
		}
		lastErr = err
		errType := ClassifyError(err)
		c.log.Warn("generate attempt failed",
			"provider", named.Ref.Name, "attempt", attempt, "class", string(errType), "err", err)
		if !Retriable(errType) || attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return GenerateResponse{}, ProviderInfo{}, err
		}
	}
	return GenerateResponse{}, ProviderInfo{}, lastErr
}

func (c *Cascade) backoff(attempt int) time.Duration {
	d := c.baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
