package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

const (
	DefaultFreshnessWindow = 24 * time.Hour
	systemUser             = "system"
)

// SynthesisEngine is the only writer of Brand Soul documents and versions.
type SynthesisEngine struct {
	registry  *ArtifactRegistry
	content   ports.ContentStore
	souls     ports.BrandSoulRepository
	cache     ports.Cache
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewSynthesisEngine(
	registry *ArtifactRegistry,
	content ports.ContentStore,
	souls ports.BrandSoulRepository,
	cache ports.Cache,
	freshness time.Duration,
	logger *slog.Logger,
) *SynthesisEngine {
	if freshness < 0 {
		freshness = DefaultFreshnessWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SynthesisEngine{
		registry:  registry,
		content:   content,
		souls:     souls,
		cache:     cache,
		freshness: freshness,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Execute runs a synthesize job.
func (e *SynthesisEngine) Execute(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) error {
	var opts domain.SynthesisOptions
	if err := job.DecodePayload(&opts); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode synthesis payload", err)
	}
	_, err := e.Synthesize(ctx, job.BrandID, opts, progress)
	return err
}

func (e *SynthesisEngine) Synthesize(ctx context.Context, brandID string, opts domain.SynthesisOptions, progress domain.ProgressFunc) (*domain.SynthesisResult, error) {
	if progress == nil {
		progress = func(context.Context, int, string) {}
	}
	logger := e.logger.With(slog.String("brand_id", brandID))

	existing, err := e.souls.Get(ctx, brandID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load brand soul: %w", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		existing = nil
	}

	if existing != nil && !opts.Force && e.now().Sub(existing.UpdatedAt) < e.freshness {
		logger.Info("brand soul is fresh, skipping synthesis", slog.Time("updated_at", existing.UpdatedAt))
		return &domain.SynthesisResult{
			BrandID:   brandID,
			Skipped:   true,
			VersionID: existing.LatestVersionID,
			Soul:      existing,
			Sources:   existing.Stats.SourceCount,
		}, nil
	}

	progress(ctx, 10, "collecting sources")
	artifacts, err := e.registry.ListEligible(ctx, brandID)
	if err != nil {
		return nil, err
	}
	sources := e.loadInsights(ctx, logger, artifacts)

	if len(sources) == 0 {
		deleted, err := e.souls.Delete(ctx, brandID)
		if err != nil {
			return nil, fmt.Errorf("delete orphaned brand soul: %w", err)
		}
		e.invalidate(ctx, logger, brandID)
		logger.Info("no eligible sources", slog.Bool("deleted_live_soul", deleted))
		return nil, domain.WrapError(domain.ErrNoSources, "synthesize brand soul",
			fmt.Errorf("brand %s has no extracted or approved artifacts", brandID))
	}

	progress(ctx, 50, "merging insights")
	soul := MergeInsights(sources)
	now := e.now()
	user := opts.UserID
	if user == "" {
		user = systemUser
	}
	soul.BrandID = brandID
	soul.LatestVersionID = e.newID()
	soul.UpdatedBy = user
	soul.UpdatedAt = now
	soul.CreatedBy = user
	soul.CreatedAt = now
	if existing != nil {
		soul.CreatedBy = existing.CreatedBy
		soul.CreatedAt = existing.CreatedAt
	}

	version := &domain.BrandSoulVersion{
		VersionID: soul.LatestVersionID,
		BrandID:   brandID,
		Snapshot:  soul,
		CreatedBy: user,
		CreatedAt: now,
	}
	progress(ctx, 80, "publishing brand soul")
	if err := e.souls.Save(ctx, &soul, version); err != nil {
		return nil, err
	}
	e.invalidate(ctx, logger, brandID)

	logger.Info("brand soul synthesized",
		slog.String("version_id", soul.LatestVersionID),
		slog.Int("sources", len(sources)),
		slog.Int("facts", soul.Stats.FactCount),
	)
	return &domain.SynthesisResult{
		BrandID:   brandID,
		VersionID: soul.LatestVersionID,
		Soul:      &soul,
		Sources:   len(sources),
	}, nil
}

// loadInsights skips artifacts whose insight payload is missing or malformed.
func (e *SynthesisEngine) loadInsights(ctx context.Context, logger *slog.Logger, artifacts []domain.Artifact) []SourceInsight {
	sources := make([]SourceInsight, 0, len(artifacts))
	for _, a := range artifacts {
		insight, err := loadInsight(ctx, e.content, &a)
		if err != nil {
			logger.Warn("skip artifact with unreadable insight",
				slog.String("artifact_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sources = append(sources, SourceInsight{ArtifactID: a.ID, Insight: insight})
	}
	return sources
}

func (e *SynthesisEngine) invalidate(ctx context.Context, logger *slog.Logger, brandID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.DeletePrefix(ctx, ContextCachePrefix(brandID)); err != nil {
		logger.Warn("context cache invalidation failed", slog.String("error", err.Error()))
	}
}

func loadInsight(ctx context.Context, content ports.ContentStore, artifact *domain.Artifact) (*domain.ExtractedInsight, error) {
	if artifact.Insights == nil || artifact.Insights.Path == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load insight", errors.New("missing insights reference"))
	}
	raw, err := content.Get(ctx, artifact.Insights.Path)
	if err != nil {
		return nil, err
	}
	var insight domain.ExtractedInsight
	if err := json.Unmarshal(raw, &insight); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode insight", err)
	}
	return &insight, nil
}
