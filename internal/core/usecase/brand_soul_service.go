package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type BrandSoulUseCase struct {
	gate     ports.AccessGate
	souls    ports.BrandSoulRepository
	registry *ArtifactRegistry
	queue    *JobQueue
	cache    ports.Cache
	logger   *slog.Logger
}

func NewBrandSoulUseCase(
	gate ports.AccessGate,
	souls ports.BrandSoulRepository,
	registry *ArtifactRegistry,
	queue *JobQueue,
	cache ports.Cache,
	logger *slog.Logger,
) *BrandSoulUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrandSoulUseCase{gate: gate, souls: souls, registry: registry, queue: queue, cache: cache, logger: logger}
}

func (uc *BrandSoulUseCase) Get(ctx context.Context, userID, brandID string) (*domain.BrandSoul, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	return uc.souls.Get(ctx, brandID)
}

func (uc *BrandSoulUseCase) Versions(ctx context.Context, userID, brandID string, limit int) ([]domain.BrandSoulVersion, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	return uc.souls.ListVersions(ctx, brandID, limit)
}

// RequestSynthesis enqueues a synthesize job, reusing one that is still
// pending. A brand without eligible sources gets ErrNoSources right away and
// loses any live Brand Soul, matching what the job itself would do.
func (uc *BrandSoulUseCase) RequestSynthesis(ctx context.Context, userID, brandID string, force bool) (*domain.Job, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	eligible, err := uc.registry.ListEligible(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("request synthesis: %w", err)
	}
	if len(eligible) == 0 {
		deleted, err := uc.souls.Delete(ctx, brandID)
		if err != nil {
			return nil, fmt.Errorf("delete orphaned brand soul: %w", err)
		}
		if deleted && uc.cache != nil {
			if err := uc.cache.DeletePrefix(ctx, ContextCachePrefix(brandID)); err != nil {
				uc.logger.Warn("context cache invalidation failed", slog.String("brand_id", brandID), slog.String("error", err.Error()))
			}
		}
		return nil, domain.WrapError(domain.ErrNoSources, "request synthesis",
			fmt.Errorf("brand %s has no extracted or approved artifacts", brandID))
	}

	job, _, err := uc.queue.EnqueueSynthesis(ctx, brandID, userID, force)
	if err != nil {
		return nil, fmt.Errorf("request synthesis: %w", err)
	}
	return job, nil
}
