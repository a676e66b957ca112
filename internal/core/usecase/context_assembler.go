package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

const (
	DefaultContextTTL          = 5 * time.Minute
	DefaultContextMaxArtifacts = 20
	ellipsis                   = "..."
	charsPerToken              = 4
)

// CacheRecorder observes context cache lookups ("hit", "miss", "error").
type CacheRecorder interface {
	RecordCacheResult(result string)
}

func ContextCachePrefix(brandID string) string {
	return "context:" + brandID + ":"
}

func contextCacheKey(req domain.ContextRequest) string {
	return fmt.Sprintf("%s%s:%t:%d:%d", ContextCachePrefix(req.BrandID), req.UserID, req.Comprehensive, req.MaxArtifacts, req.TokenBudget)
}

// ContextAssembler builds prompt context from the Brand Soul and artifact
// content. It never writes pipeline state.
type ContextAssembler struct {
	gate         ports.AccessGate
	souls        ports.BrandSoulRepository
	registry     *ArtifactRegistry
	content      ports.ContentStore
	cache        ports.Cache
	ttl          time.Duration
	maxArtifacts int
	recorder     CacheRecorder
	logger       *slog.Logger
	now          func() time.Time
}

func NewContextAssembler(
	gate ports.AccessGate,
	souls ports.BrandSoulRepository,
	registry *ArtifactRegistry,
	content ports.ContentStore,
	cache ports.Cache,
	ttl time.Duration,
	maxArtifacts int,
	recorder CacheRecorder,
	logger *slog.Logger,
) *ContextAssembler {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	if maxArtifacts <= 0 {
		maxArtifacts = DefaultContextMaxArtifacts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextAssembler{
		gate:         gate,
		souls:        souls,
		registry:     registry,
		content:      content,
		cache:        cache,
		ttl:          ttl,
		maxArtifacts: maxArtifacts,
		recorder:     recorder,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// BuildContext returns the cached bundle for the request parameters or
// computes and caches a new one.
func (a *ContextAssembler) BuildContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextBundle, error) {
	if strings.TrimSpace(req.BrandID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build context", errors.New("brand id is required"))
	}
	if req.TokenBudget < 0 || req.MaxArtifacts < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build context", errors.New("budgets must not be negative"))
	}
	if err := a.gate.RequireAccess(ctx, req.UserID, req.BrandID); err != nil {
		return nil, err
	}
	if req.Comprehensive && req.MaxArtifacts == 0 {
		req.MaxArtifacts = a.maxArtifacts
	}

	key := contextCacheKey(req)
	if bundle, ok := a.cached(ctx, key); ok {
		return bundle, nil
	}

	bundle, err := a.assemble(ctx, req)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if raw, err := json.Marshal(bundle); err == nil {
			if err := a.cache.Set(ctx, key, raw, a.ttl); err != nil {
				a.logger.Warn("context cache write failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
	}
	return bundle, nil
}

func (a *ContextAssembler) cached(ctx context.Context, key string) (*domain.ContextBundle, bool) {
	if a.cache == nil {
		return nil, false
	}
	raw, ok, err := a.cache.Get(ctx, key)
	switch {
	case err != nil:
		a.record("error")
		a.logger.Warn("context cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	case !ok:
		a.record("miss")
		return nil, false
	}
	var bundle domain.ContextBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		a.record("error")
		return nil, false
	}
	a.record("hit")
	return &bundle, true
}

func (a *ContextAssembler) record(result string) {
	if a.recorder != nil {
		a.recorder.RecordCacheResult(result)
	}
}

func (a *ContextAssembler) assemble(ctx context.Context, req domain.ContextRequest) (*domain.ContextBundle, error) {
	soul, err := a.souls.Get(ctx, req.BrandID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load brand soul: %w", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		soul = nil
	}

	bundle := &domain.ContextBundle{
		BrandID:     req.BrandID,
		GeneratedAt: a.now(),
	}
	bundle.Sections = append(bundle.Sections, domain.ContextSection{Name: "identity", Text: identitySection(req.BrandID, soul)})
	if soul != nil {
		bundle.Sections = append(bundle.Sections,
			domain.ContextSection{Name: "voice", Text: voiceSection(soul.Voice)},
			domain.ContextSection{Name: "messaging", Text: messagingSection(soul.Messaging)},
			domain.ContextSection{Name: "facts", Text: factsSection(soul.Facts)},
			domain.ContextSection{Name: "visual", Text: visualSection(soul.Visual)},
		)
	}

	if req.Comprehensive {
		text, count, err := a.comprehensiveSection(ctx, req)
		if err != nil {
			return nil, err
		}
		bundle.ArtifactCount = count
		bundle.Sections = append(bundle.Sections, domain.ContextSection{Name: "insights", Text: text})
	}

	if req.TokenBudget > 0 {
		bundle.Sections, bundle.Truncated = TruncateSections(bundle.Sections, req.TokenBudget)
	}
	bundle.EstimatedTokens = domain.EstimateTokens(bundle.Text())
	return bundle, nil
}

// comprehensiveSection lists eligible artifacts newest first, capped at
// MaxArtifacts, with full insight detail and full extracted text.
func (a *ContextAssembler) comprehensiveSection(ctx context.Context, req domain.ContextRequest) (string, int, error) {
	artifacts, err := a.registry.ListEligible(ctx, req.BrandID)
	if err != nil {
		return "", 0, err
	}
	sort.SliceStable(artifacts, func(i, j int) bool {
		return sortTime(&artifacts[i]).After(sortTime(&artifacts[j]))
	})
	if len(artifacts) > req.MaxArtifacts {
		artifacts = artifacts[:req.MaxArtifacts]
	}

	var b strings.Builder
	b.WriteString("Artifact insights")
	count := 0
	for i := range artifacts {
		artifact := &artifacts[i]
		insight, err := loadInsight(ctx, a.content, artifact)
		if err != nil {
			a.logger.Warn("skip artifact in context", slog.String("artifact_id", artifact.ID), slog.String("error", err.Error()))
			continue
		}
		text := ""
		if artifact.Processed != nil {
			raw, err := a.content.Get(ctx, artifact.Processed.Path)
			if err != nil {
				a.logger.Warn("processed text unavailable", slog.String("artifact_id", artifact.ID), slog.String("error", err.Error()))
			} else {
				text = string(raw)
			}
		}
		writeArtifactDetail(&b, artifact, insight, text)
		count++
	}
	if count == 0 {
		return "", 0, nil
	}
	return b.String(), count, nil
}

func sortTime(a *domain.Artifact) time.Time {
	if a.ProcessedAt != nil {
		return *a.ProcessedAt
	}
	return a.CreatedAt
}

// TruncateSections keeps sections in order until the character budget
// (tokens * 4) runs out, hard-cutting the first section that does not fit and
// marking it with an ellipsis. Later sections are dropped.
func TruncateSections(sections []domain.ContextSection, tokenBudget int) ([]domain.ContextSection, bool) {
	remaining := tokenBudget * charsPerToken
	out := make([]domain.ContextSection, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		if len(out) > 0 {
			remaining -= len("\n\n")
		}
		n := utf8.RuneCountInString(s.Text)
		if n <= remaining {
			out = append(out, s)
			remaining -= n
			continue
		}
		if remaining > len(ellipsis) {
			s.Text = TruncateText(s.Text, remaining)
			out = append(out, s)
		}
		return out, true
	}
	return out, false
}

// TruncateText cuts text to at most limit runes including the ellipsis.
func TruncateText(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit <= len(ellipsis) {
		return ellipsis[:max(limit, 0)]
	}
	runes := []rune(text)
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}

func identitySection(brandID string, soul *domain.BrandSoul) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s", brandID)
	if soul == nil {
		b.WriteString("\nNo Brand Soul has been synthesized yet.")
		return b.String()
	}
	fmt.Fprintf(&b, "\nSources: %d artifacts, %d facts", soul.Stats.SourceCount, soul.Stats.FactCount)
	fmt.Fprintf(&b, "\nConfidence: %.2f, health: %d/100", soul.Stats.ConfidenceScore, soul.Stats.HealthScore)
	fmt.Fprintf(&b, "\nLast synthesized: %s", soul.UpdatedAt.Format(time.RFC3339))
	return b.String()
}

func voiceSection(v domain.VoiceProfile) string {
	lines := []string{"Brand voice"}
	if len(v.Personality) > 0 {
		traits := make([]string, 0, len(v.Personality))
		for _, t := range v.Personality {
			traits = append(traits, fmt.Sprintf("%s (%.2f)", t.Trait, t.Strength))
		}
		lines = append(lines, "Personality: "+strings.Join(traits, ", "))
	}
	if v.Tone.Primary != "" {
		tone := "Tone: " + v.Tone.Primary
		if len(v.Tone.Secondary) > 0 {
			tone += "; also " + strings.Join(v.Tone.Secondary, ", ")
		}
		lines = append(lines, tone)
	}
	if len(v.Tone.Avoid) > 0 {
		lines = append(lines, "Avoid tone: "+strings.Join(v.Tone.Avoid, ", "))
	}
	for _, aspect := range v.Aspects {
		if aspect.Aspect == "tone" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", humanize(aspect.Aspect), strings.Join(aspect.Values, ", ")))
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func messagingSection(m domain.MessagingFramework) string {
	if len(m.Themes) == 0 {
		return ""
	}
	lines := []string{"Key messages"}
	for _, theme := range m.Themes {
		for _, msg := range theme.Messages {
			lines = append(lines, fmt.Sprintf("- [%s] %s", theme.Theme, msg.Message))
		}
	}
	return strings.Join(lines, "\n")
}

func factsSection(f domain.FactLibrary) string {
	if len(f.Facts) == 0 {
		return ""
	}
	lines := []string{"Brand facts"}
	for _, fact := range f.Facts {
		lines = append(lines, fmt.Sprintf("- [%s] %s", fact.Category, fact.Fact))
	}
	return strings.Join(lines, "\n")
}

func visualSection(v *domain.VisualIdentity) string {
	if v == nil {
		return ""
	}
	lines := []string{"Visual identity"}
	appendList := func(label string, values []string) {
		if len(values) > 0 {
			lines = append(lines, label+": "+strings.Join(values, ", "))
		}
	}
	appendList("Colors", v.Colors)
	appendList("Typography", v.Typography)
	appendList("Image styles", v.ImageStyle.Styles)
	appendList("Imagery", v.ImageStyle.Imagery)
	appendList("Avoid", v.ImageStyle.Avoid)
	appendPreferences := func(label string, buckets []domain.PreferenceBucket) {
		for _, bucket := range buckets {
			parts := make([]string, 0, 2)
			if len(bucket.Preferred) > 0 {
				parts = append(parts, "prefer "+strings.Join(bucket.Preferred, ", "))
			}
			if len(bucket.Avoid) > 0 {
				parts = append(parts, "avoid "+strings.Join(bucket.Avoid, ", "))
			}
			lines = append(lines, fmt.Sprintf("%s %s: %s", label, humanize(bucket.Dimension), strings.Join(parts, "; ")))
		}
	}
	appendPreferences("Photography", v.ImageStyle.Photographic)
	appendPreferences("Scene", v.ImageStyle.Scene)
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func writeArtifactDetail(b *strings.Builder, artifact *domain.Artifact, insight *domain.ExtractedInsight, text string) {
	title := artifact.Title
	if title == "" {
		title = artifact.ID
	}
	fmt.Fprintf(b, "\n\n### %s (%s, confidence %.2f)", title, artifact.Type, insight.Confidence)
	for _, v := range insight.Voice {
		fmt.Fprintf(b, "\nVoice %s: %s", humanize(v.Aspect), v.Value)
		if v.Evidence != "" {
			fmt.Fprintf(b, " (%q)", v.Evidence)
		}
	}
	for _, f := range insight.Facts {
		fmt.Fprintf(b, "\nFact [%s]: %s", f.Category, f.Fact)
	}
	for _, m := range insight.Messages {
		fmt.Fprintf(b, "\nMessage [%s]: %s", m.Theme, m.Message)
	}
	for _, v := range insight.Visual {
		if v.Preference != nil {
			fmt.Fprintf(b, "\nVisual %s %s: %s %s", v.Type, v.Preference.Dimension, v.Preference.Polarity, v.Preference.Value)
			continue
		}
		fmt.Fprintf(b, "\nVisual %s: %s", v.Type, v.Value)
	}
	if text != "" {
		b.WriteString("\nContent:\n")
		b.WriteString(text)
	}
}

func humanize(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
