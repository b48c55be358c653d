package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const azureEmbedDim = 1536

// AzureOpenAIProvider talks to an Azure OpenAI deployment. It is the
// primary managed-cloud provider when configured.
type AzureOpenAIProvider struct {
	apiKey          string
	endpoint        string
	apiVersion      string
	embedDeployment string
	chatDeployment  string
	client          *http.Client
}

func NewAzureOpenAIProvider() *AzureOpenAIProvider {
	apiVersion := strings.TrimSpace(os.Getenv("DOCQA_AZURE_OPENAI_API_VERSION"))
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}
	return &AzureOpenAIProvider{
		apiKey:          os.Getenv("DOCQA_AZURE_OPENAI_API_KEY"),
		endpoint:        strings.TrimRight(os.Getenv("DOCQA_AZURE_OPENAI_ENDPOINT"), "/"),
		apiVersion:      apiVersion,
		embedDeployment: os.Getenv("DOCQA_AZURE_OPENAI_EMBED_DEPLOYMENT"),
		chatDeployment:  os.Getenv("DOCQA_AZURE_OPENAI_CHAT_DEPLOYMENT"),
		client:          &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *AzureOpenAIProvider) Dimension() int { return azureEmbedDim }

func (a *AzureOpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "azure", Model: a.embedDeployment, Dimension: azureEmbedDim}
	if a.apiKey == "" || a.endpoint == "" || a.embedDeployment == "" {
		return nil, info, fmt.Errorf("azure openai key missing or endpoint not configured")
	}
	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s", a.endpoint, a.embedDeployment, a.apiVersion)
	payload, _ := json.Marshal(map[string]any{"input": req.Inputs})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	httpReq.Header.Set("api-key", a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("azure embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, fmt.Errorf("azure embedding error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode azure embedding response: %w", err)
	}
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.Embedding)
	}
	return out, info, nil
}

func (a *AzureOpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "azure", Model: a.chatDeployment}
	if a.apiKey == "" || a.endpoint == "" || a.chatDeployment == "" {
		return GenerateResponse{}, info, fmt.Errorf("azure openai key missing or endpoint not configured")
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt = prompt + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", a.endpoint, a.chatDeployment, a.apiVersion)
	payload, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": answerSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	httpReq.Header.Set("api-key", a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("azure generate request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("azure generate error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode azure generate response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("azure returned empty choices")
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}
