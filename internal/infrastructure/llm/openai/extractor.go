package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/llm/extraction"
)

const parseAttempts = 3

type chatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Config struct {
	BaseURL  string
	Model    string
	APIKey   string
	MaxChars int
}

// InsightExtractor calls an OpenAI-compatible chat endpoint in JSON mode.
type InsightExtractor struct {
	model     chatModel
	modelName string
	maxChars  int
	logger    *slog.Logger
}

func NewInsightExtractor(cfg Config, logger *slog.Logger) (*InsightExtractor, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai extractor: model is required")
	}
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return newInsightExtractor(client, cfg.Model, cfg.MaxChars, logger), nil
}

func newInsightExtractor(model chatModel, modelName string, maxChars int, logger *slog.Logger) *InsightExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightExtractor{
		model:     model,
		modelName: modelName,
		maxChars:  maxChars,
		logger:    logger.With(slog.String("component", "openai-extractor")),
	}
}

func (e *InsightExtractor) Extract(ctx context.Context, input ports.ExtractionInput) (*domain.ExtractedInsight, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openai extract", errors.New("empty text"))
	}
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extraction.SystemPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, extraction.UserPrompt(input, e.maxChars)),
	}

	// Malformed JSON is retried here; transport failures go back to the job queue.
	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		response, err := e.model.GenerateContent(ctx, content, llms.WithTemperature(0.2), llms.WithJSONMode())
		if err != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "openai generate", err)
		}
		if len(response.Choices) == 0 {
			lastErr = errors.New("no choices returned from model")
			continue
		}

		insight, err := extraction.Parse(response.Choices[0].Content, e.modelName)
		if err != nil {
			lastErr = err
			e.logger.Warn("unparseable extraction response",
				slog.Int("attempt", attempt),
				slog.String("artifact_id", input.ArtifactID),
				slog.String("error", err.Error()),
			)
			continue
		}
		return insight, nil
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "openai extract", lastErr)
}
