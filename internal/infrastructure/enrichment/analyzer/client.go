package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/infrastructure/resilience"
)

const (
	serviceName    = "analyzer"
	DefaultTimeout = 600 * time.Second
)

// Client calls the analysis service: POST {"content": ...} and read back
// optional title, extracted_date, tags and summary.
type Client struct {
	url        string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
}

func New(url string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: httpClient,
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Enrich(ctx context.Context, content string) (domain.Enrichment, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return domain.Enrichment{}, fmt.Errorf("marshal analyze request: %w", err)
	}

	raw, err := resilience.Call(ctx, c.executor, "analyzer.analyze", func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, body)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return domain.Enrichment{}, resilience.WrapTemporary("analyzer analyze", err, resilience.ClassifyHTTPError)
	}
	return DecodeResult(raw)
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    serviceName,
			Operation:  "analyze",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}
	return raw, nil
}
