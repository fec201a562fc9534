package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

// SearchResult is one web.search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider answers a web.search query.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// MissingConfigProvider fails every search with reason, used when no web
// search backend has been configured.
type MissingConfigProvider struct {
	Reason string
}

func (p MissingConfigProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return nil, fmt.Errorf("web.search: %s", p.Reason)
}

// PerplexityProvider answers web.search via the Perplexity chat
// completions API, asking the model to return a short list of
// title/url/snippet results.
type PerplexityProvider struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxResults int
	httpClient *http.Client
}

// NewPerplexityProvider builds a PerplexityProvider with sane defaults.
func NewPerplexityProvider(apiKey, baseURL, model string) *PerplexityProvider {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if model == "" {
		model = "sonar"
	}
	return &PerplexityProvider{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		Timeout:    15 * time.Second,
		MaxResults: 5,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *PerplexityProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(perplexityRequest{
		Model: p.Model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "Return a JSON array of {\"title\",\"url\",\"snippet\"} search results, nothing else."},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perplexity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("perplexity request failed: %s: %s", resp.Status, string(respBody))
	}

	var parsed perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil
	}

	var results []SearchResult
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &results); err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	if len(results) > p.MaxResults {
		results = results[:p.MaxResults]
	}
	return results, nil
}

var webSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"query": {"type": "string"}},
	"required": ["query"]
}`)

// RegisterWebSearch registers web.search against provider.
func RegisterWebSearch(reg *registry.Registry, provider SearchProvider) error {
	return reg.Register(models.ToolSpec{
		Name:        "web.search",
		Description: "Search the web for a query",
		ArgsSchema:  webSearchSchema,
		Risk:        models.RiskSafe,
		TimeoutMS:   10000,
		Caps:        []string{"net"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		results, err := provider.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(results))
		for i, r := range results {
			out[i] = map[string]any{"title": r.Title, "url": r.URL, "snippet": r.Snippet}
		}
		return out, nil
	})
}
