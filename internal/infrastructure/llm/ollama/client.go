package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/llm/extraction"
	"github.com/kirillkom/brand-soul/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, genModel string) *Client {
	return NewWithOptions(baseURL, genModel, Options{})
}

func NewWithOptions(baseURL, genModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// InsightExtractor asks a local Ollama model for a JSON insight document.
type InsightExtractor struct {
	client   *Client
	maxChars int
}

func NewInsightExtractor(client *Client, maxChars int) *InsightExtractor {
	return &InsightExtractor{client: client, maxChars: maxChars}
}

func (e *InsightExtractor) Extract(ctx context.Context, input ports.ExtractionInput) (*domain.ExtractedInsight, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama extract", errors.New("empty text"))
	}
	respText, err := e.client.generateJSON(ctx, extraction.BuildPrompt(input, e.maxChars))
	if err != nil {
		return nil, err
	}
	return extraction.Parse(respText, e.client.genModel)
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0.2,
		},
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", resilience.Wrap("ollama generate", err, classifyOllamaError)
	}
	return strings.TrimSpace(response.Response), nil
}
