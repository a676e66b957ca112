package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

const defaultInsightConfidence = 0.5

// Parse decodes a model response into an insight. Surrounding prose and code
// fences are tolerated; empty items are dropped and numeric fields clamped.
func Parse(raw, model string) (*domain.ExtractedInsight, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse insight", errors.New("response contains no json object"))
	}

	var insight domain.ExtractedInsight
	if err := json.Unmarshal([]byte(body), &insight); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse insight", fmt.Errorf("decode json: %w", err))
	}

	insight.Voice = cleanVoice(insight.Voice)
	insight.Facts = cleanFacts(insight.Facts)
	insight.Messages = cleanMessages(insight.Messages)
	insight.Visual = cleanVisual(insight.Visual)
	insight.Confidence = clampUnit(insight.Confidence)
	if insight.Confidence == 0 {
		insight.Confidence = defaultInsightConfidence
	}
	insight.Model = model
	insight.RawOutput = raw
	return &insight, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}

func cleanVoice(items []domain.VoiceElement) []domain.VoiceElement {
	out := items[:0]
	for _, item := range items {
		item.Aspect = strings.TrimSpace(item.Aspect)
		item.Value = strings.TrimSpace(item.Value)
		if item.Aspect == "" || item.Value == "" {
			continue
		}
		item.Evidence = strings.TrimSpace(item.Evidence)
		item.Confidence = clampUnit(item.Confidence)
		out = append(out, item)
	}
	return out
}

func cleanFacts(items []domain.FactElement) []domain.FactElement {
	out := items[:0]
	for _, item := range items {
		item.Fact = strings.TrimSpace(item.Fact)
		if item.Fact == "" {
			continue
		}
		item.Category = strings.TrimSpace(item.Category)
		if item.Category == "" {
			item.Category = "general"
		}
		item.Confidence = clampUnit(item.Confidence)
		out = append(out, item)
	}
	return out
}

func cleanMessages(items []domain.MessageElement) []domain.MessageElement {
	out := items[:0]
	for _, item := range items {
		item.Message = strings.TrimSpace(item.Message)
		if item.Message == "" {
			continue
		}
		item.Theme = strings.TrimSpace(item.Theme)
		if item.Theme == "" {
			item.Theme = "general"
		}
		if item.Importance != 0 {
			item.Importance = min(max(item.Importance, 1), 10)
		}
		out = append(out, item)
	}
	return out
}

const generalDimension = "general"

func cleanVisual(items []domain.VisualElement) []domain.VisualElement {
	out := items[:0]
	for _, item := range items {
		item.Value = strings.TrimSpace(item.Value)
		if item.Type.IsPreference() {
			if item.Preference == nil {
				if item.Value == "" {
					continue
				}
				// Free-form preference text has no dimension of its own.
				item.Preference = &domain.VisualPreference{
					Dimension: generalDimension,
					Polarity:  domain.PolarityPreferred,
					Value:     item.Value,
				}
				item.Value = ""
			}
		} else if item.Type == "" || item.Value == "" {
			continue
		}
		item.Confidence = clampUnit(item.Confidence)
		out = append(out, item)
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
