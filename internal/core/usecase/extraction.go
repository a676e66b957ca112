package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

// ExtractInsightsUseCase runs the extract-insights job for one artifact.
type ExtractInsightsUseCase struct {
	registry       *ArtifactRegistry
	content        ports.ContentStore
	reader         ports.SourceReader
	extractor      ports.InsightExtractor
	queue          *JobQueue
	autoSynthesize bool
	logger         *slog.Logger
	now            func() time.Time
}

func NewExtractInsightsUseCase(
	registry *ArtifactRegistry,
	content ports.ContentStore,
	reader ports.SourceReader,
	extractor ports.InsightExtractor,
	queue *JobQueue,
	autoSynthesize bool,
	logger *slog.Logger,
) *ExtractInsightsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractInsightsUseCase{
		registry:       registry,
		content:        content,
		reader:         reader,
		extractor:      extractor,
		queue:          queue,
		autoSynthesize: autoSynthesize,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ExtractInsightsUseCase) Execute(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) error {
	if job.ArtifactID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract insights", errors.New("job has no artifact id"))
	}
	if progress == nil {
		progress = func(context.Context, int, string) {}
	}
	logger := uc.logger.With(
		slog.String("job_id", job.ID),
		slog.String("brand_id", job.BrandID),
		slog.String("artifact_id", job.ArtifactID),
	)

	artifact, skip, err := uc.registry.BeginExtraction(ctx, job.BrandID, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("begin extraction: %w", err)
	}
	if skip {
		logger.Info("artifact already extracted, skipping", slog.String("status", string(artifact.Status)))
		return nil
	}

	if err := uc.extract(ctx, artifact, progress); err != nil {
		// The job deadline may already have expired; the failure must still land
		// or the artifact stays in flight and blocks every retry.
		markCtx := context.WithoutCancel(ctx)
		if _, markErr := uc.registry.MarkFailed(markCtx, job.BrandID, job.ArtifactID, err); markErr != nil {
			logger.Error("mark artifact failed", slog.String("error", markErr.Error()))
			return fmt.Errorf("%w; mark failed status: %v", err, markErr)
		}
		return err
	}

	if uc.autoSynthesize && uc.queue != nil {
		synth, created, err := uc.queue.EnqueueSynthesis(ctx, job.BrandID, artifact.CreatedBy, true)
		if err != nil {
			// The insight is stored; a later synthesis run still picks it up.
			logger.Warn("enqueue auto synthesis failed", slog.String("error", err.Error()))
		} else {
			logger.Debug("auto synthesis scheduled", slog.String("synthesis_job_id", synth.ID), slog.Bool("created", created))
		}
	}
	return nil
}

func (uc *ExtractInsightsUseCase) extract(ctx context.Context, artifact *domain.Artifact, progress domain.ProgressFunc) error {
	progress(ctx, 10, "reading source")
	raw, err := uc.content.Get(ctx, artifact.Content.Path)
	if err != nil {
		return fmt.Errorf("load source content: %w", err)
	}

	text, err := uc.reader.Read(ctx, artifact, raw)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "read source", errors.New("empty extracted text"))
	}

	processed, err := uc.content.Store(ctx, domain.ProcessedTextPath(artifact.BrandID, artifact.ID), []byte(text), "text/plain; charset=utf-8")
	if err != nil {
		return fmt.Errorf("store processed text: %w", err)
	}

	if _, err := uc.registry.MarkExtracting(ctx, artifact.BrandID, artifact.ID); err != nil {
		return fmt.Errorf("set status=extracting: %w", err)
	}
	progress(ctx, 30, "extracting insights")

	insight, err := uc.extractor.Extract(ctx, ports.ExtractionInput{
		ArtifactID:   artifact.ID,
		ArtifactType: artifact.Type,
		Title:        artifact.Title,
		Text:         text,
	})
	if err != nil {
		return fmt.Errorf("extract insights: %w", err)
	}
	if insight == nil || insight.Empty() {
		return domain.WrapError(domain.ErrInvalidInput, "extract insights", errors.New("model returned no insights"))
	}
	progress(ctx, 80, "saving insights")

	insight.ID = uuid.NewString()
	insight.ArtifactID = artifact.ID
	insight.BrandID = artifact.BrandID
	insight.CreatedAt = uc.now()
	if artifact.Insights != nil {
		insight.Supersedes = artifact.Insights.InsightID
	}
	payload, err := json.Marshal(insight)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "encode insight", err)
	}
	insightPath := domain.InsightPath(artifact.BrandID, artifact.ID, insight.ID)
	if _, err := uc.content.Store(ctx, insightPath, payload, "application/json"); err != nil {
		return fmt.Errorf("store insight: %w", err)
	}

	ref := domain.InsightsRef{
		InsightID:   insight.ID,
		Path:        insightPath,
		Confidence:  insight.Confidence,
		Model:       insight.Model,
		ExtractedAt: insight.CreatedAt,
	}
	if _, err := uc.registry.CompleteExtraction(ctx, artifact.BrandID, artifact.ID, processed, ref); err != nil {
		return fmt.Errorf("set status=extracted: %w", err)
	}
	progress(ctx, 100, "extracted")
	return nil
}
