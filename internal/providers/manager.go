package providers

import (
	"fmt"
	"strings"

	"docqa/internal/config"
)

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager holds the configured provider lists in priority order. The order
// of the config string is the cascade order.
type Manager struct {
	embedProviders []NamedEmbedProvider
	llmProviders   []NamedLLMProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support generation", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	if len(m.embedProviders) == 0 {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	return m, nil
}

func (m *Manager) EmbedProviders() []NamedEmbedProvider { return m.embedProviders }
func (m *Manager) LLMProviders() []NamedLLMProvider     { return m.llmProviders }

func (m *Manager) EmbedProviderByIndex(idx int) (EmbeddingProvider, ProviderRef) {
	if idx < 0 || idx >= len(m.embedProviders) {
		idx = 0
	}
	p := m.embedProviders[idx]
	return p.Provider, p.Ref
}

func (m *Manager) LLMProviderByIndex(idx int) (LLMProvider, ProviderRef) {
	if idx < 0 || idx >= len(m.llmProviders) {
		idx = 0
	}
	p := m.llmProviders[idx]
	return p.Provider, p.Ref
}

// FindEmbedProviderIndex resolves a provider name to its cascade index, or
// -1 when the name is not configured.
func (m *Manager) FindEmbedProviderIndex(name string) int {
	target := strings.ToLower(strings.TrimSpace(name))
	for i := range m.embedProviders {
		if strings.ToLower(m.embedProviders[i].Ref.Name) == target || strings.ToLower(m.embedProviders[i].Ref.Raw) == target {
			return i
		}
	}
	return -1
}

// EmbedOrder returns cascade indices with the named provider first when it
// is configured. Used to re-request the provider a document was embedded
// with so query vectors stay comparable.
func (m *Manager) EmbedOrder(preferred string) []int {
	order := make([]int, 0, len(m.embedProviders))
	target := strings.ToLower(strings.TrimSpace(preferred))
	if target != "" {
		for i := range m.embedProviders {
			if strings.ToLower(m.embedProviders[i].Ref.Name) == target {
				order = append(order, i)
				break
			}
		}
	}
	for i := range m.embedProviders {
		if len(order) > 0 && order[0] == i {
			continue
		}
		order = append(order, i)
	}
	return order
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "azure":
		return NewAzureOpenAIProvider(), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "anthropic":
		return NewAnthropicProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
