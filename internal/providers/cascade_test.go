package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"docqa/internal/util"

	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	name  string
	dim   int
	calls int
	// fail returns an error for the nth call (1-based); nil means success.
	fail func(call int) error
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	f.calls++
	info := ProviderInfo{Name: f.name, Model: f.name + "-model", Dimension: f.dim}
	if f.fail != nil {
		if err := f.fail(f.calls); err != nil {
			return nil, info, err
		}
	}
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = make([]float32, f.dim)
	}
	return out, info, nil
}

type fakeLLM struct {
	name  string
	calls int
	fail  func(call int) error
}

func (f *fakeLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	f.calls++
	info := ProviderInfo{Name: f.name}
	if f.fail != nil {
		if err := f.fail(f.calls); err != nil {
			return GenerateResponse{}, info, err
		}
	}
	return GenerateResponse{Text: "answer from " + f.name}, info, nil
}

func testCascade(embeds []NamedEmbedProvider, llms []NamedLLMProvider) *Cascade {
	m := &Manager{embedProviders: embeds, llmProviders: llms}
	c := NewCascade(m, CascadeOptions{
		MaxAttempts:       3,
		AttemptTimeout:    time.Second,
		BaseBackoff:       time.Millisecond,
		RequestsPerSecond: 10000,
	}, nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func named(p EmbeddingProvider, name string) NamedEmbedProvider {
	return NamedEmbedProvider{Ref: ProviderRef{Raw: name, Name: name}, Provider: p}
}

func TestCascadeFallsBackOnAuthError(t *testing.T) {
	p1 := &fakeEmbedder{name: "p1", dim: 4, fail: func(int) error { return errors.New("401 unauthorized") }}
	p2 := &fakeEmbedder{name: "p2", dim: 8}
	c := testCascade([]NamedEmbedProvider{named(p1, "p1"), named(p2, "p2")}, nil)

	vectors, info, err := c.EmbedBatch(context.Background(), "test", []string{"a", "b"}, "")
	require.NoError(t, err)
	require.Equal(t, "p2", info.Name)
	require.Len(t, vectors, 2)
	// Returned dimensionality matches the winning provider's declaration.
	require.Len(t, vectors[0], 8)
	// Auth errors skip immediately, no in-provider retry.
	require.Equal(t, 1, p1.calls)
	require.Equal(t, 1, p2.calls)
}

func TestCascadeRetriesTransientWithinProvider(t *testing.T) {
	p1 := &fakeEmbedder{name: "p1", dim: 4, fail: func(call int) error {
		if call < 3 {
			return errors.New("request timeout")
		}
		return nil
	}}
	c := testCascade([]NamedEmbedProvider{named(p1, "p1")}, nil)

	_, info, err := c.EmbedBatch(context.Background(), "test", []string{"a"}, "")
	require.NoError(t, err)
	require.Equal(t, "p1", info.Name)
	require.Equal(t, 3, p1.calls)
}

func TestCascadeExhaustionReturnsEmbeddingUnavailable(t *testing.T) {
	p1 := &fakeEmbedder{name: "p1", dim: 4, fail: func(int) error { return errors.New("503 service unavailable") }}
	p2 := &fakeEmbedder{name: "p2", dim: 4, fail: func(int) error { return errors.New("invalid api key") }}
	c := testCascade([]NamedEmbedProvider{named(p1, "p1"), named(p2, "p2")}, nil)

	_, _, err := c.EmbedBatch(context.Background(), "test", []string{"a"}, "")
	require.ErrorIs(t, err, util.ErrEmbeddingUnavailable)
	// Transient errors exhaust the retry budget, auth fails once.
	require.Equal(t, 3, p1.calls)
	require.Equal(t, 1, p2.calls)
}

func TestCascadePreferredProviderTriedFirst(t *testing.T) {
	p1 := &fakeEmbedder{name: "p1", dim: 4}
	p2 := &fakeEmbedder{name: "p2", dim: 4}
	c := testCascade([]NamedEmbedProvider{named(p1, "p1"), named(p2, "p2")}, nil)

	_, info, err := c.Embed(context.Background(), "query", "text", "p2")
	require.NoError(t, err)
	require.Equal(t, "p2", info.Name)
	require.Equal(t, 0, p1.calls)
}

func TestCascadePreferredProviderFallsBack(t *testing.T) {
	p1 := &fakeEmbedder{name: "p1", dim: 4}
	p2 := &fakeEmbedder{name: "p2", dim: 4, fail: func(int) error { return errors.New("invalid api key") }}
	c := testCascade([]NamedEmbedProvider{named(p1, "p1"), named(p2, "p2")}, nil)

	_, info, err := c.Embed(context.Background(), "query", "text", "p2")
	require.NoError(t, err)
	require.Equal(t, "p1", info.Name)
	require.Equal(t, 1, p2.calls)
}

func TestCascadeRejectsDimensionMismatch(t *testing.T) {
	lying := &fakeEmbedder{name: "p1", dim: 4}
	// Declared dimension differs from produced vectors.
	lying.dim = 4
	wrapped := &dimensionLiar{inner: lying, produce: 6}
	p2 := &fakeEmbedder{name: "p2", dim: 4}
	c := testCascade([]NamedEmbedProvider{named(wrapped, "p1"), named(p2, "p2")}, nil)

	_, info, err := c.EmbedBatch(context.Background(), "test", []string{"a"}, "")
	require.NoError(t, err)
	require.Equal(t, "p2", info.Name)
}

type dimensionLiar struct {
	inner   *fakeEmbedder
	produce int
}

func (d *dimensionLiar) Dimension() int { return d.inner.dim }

func (d *dimensionLiar) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = make([]float32, d.produce)
	}
	return out, ProviderInfo{Name: d.inner.name}, nil
}

func TestGenerateFallsBackAcrossProviders(t *testing.T) {
	l1 := &fakeLLM{name: "l1", fail: func(int) error { return errors.New("insufficient_quota") }}
	l2 := &fakeLLM{name: "l2"}
	c := testCascade(nil, []NamedLLMProvider{
		{Ref: ProviderRef{Name: "l1"}, Provider: l1},
		{Ref: ProviderRef{Name: "l2"}, Provider: l2},
	})

	resp, info, err := c.Generate(context.Background(), GenerateRequest{Operation: "answer", Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, "l2", info.Name)
	require.Equal(t, "answer from l2", resp.Text)
	require.Equal(t, 1, l1.calls)
}

func TestGenerateExhaustionReturnsLLMUnavailable(t *testing.T) {
	l1 := &fakeLLM{name: "l1", fail: func(call int) error { return fmt.Errorf("attempt %d: 500 internal", call) }}
	c := testCascade(nil, []NamedLLMProvider{{Ref: ProviderRef{Name: "l1"}, Provider: l1}})

	_, _, err := c.Generate(context.Background(), GenerateRequest{Operation: "answer", Prompt: "q"})
	require.ErrorIs(t, err, util.ErrLLMUnavailable)
	require.Equal(t, 3, l1.calls)
}
