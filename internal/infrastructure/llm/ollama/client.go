package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/infrastructure/enrichment/analyzer"
	"github.com/kirillkom/dokeep/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = analyzer.DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Enricher asks the model for the same JSON object the analysis service returns.
type Enricher struct {
	client *Client
}

func NewEnricher(client *Client) *Enricher {
	return &Enricher{client: client}
}

func (e *Enricher) Enrich(ctx context.Context, content string) (domain.Enrichment, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Enrichment{}, nil
	}
	respText, err := e.client.generateJSON(ctx, buildEnrichmentPrompt(content))
	if err != nil {
		return domain.Enrichment{}, err
	}
	return analyzer.DecodeResult([]byte(extractJSONObject(respText)))
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Model:  c.genModel,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: generateOptions{
			Temperature: 0,
			NumCtx:      8192,
		},
	}
	resp, err := resilience.Call(ctx, c.executor, "ollama.generate", func(ctx context.Context) (generateResponse, error) {
		return c.generate(ctx, req)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporary("ollama generate", err, resilience.ClassifyHTTPError)
	}
	return strings.TrimSpace(resp.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
