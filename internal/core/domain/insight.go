package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type VoiceElement struct {
	Aspect     string  `json:"aspect"`
	Value      string  `json:"value"`
	Evidence   string  `json:"evidence,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type FactElement struct {
	Category   string  `json:"category"`
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence,omitempty"`
}

type MessageElement struct {
	Theme      string `json:"theme"`
	Message    string `json:"message"`
	Importance int    `json:"importance,omitempty"`
}

type VisualType string

const (
	VisualColor        VisualType = "color"
	VisualFont         VisualType = "font"
	VisualStyle        VisualType = "style"
	VisualImagery      VisualType = "imagery"
	VisualAvoid        VisualType = "avoid"
	VisualPhotographic VisualType = "photographic_preference"
	VisualScene        VisualType = "scene_preference"
)

func (t VisualType) IsPreference() bool {
	return t == VisualPhotographic || t == VisualScene
}

type Polarity string

const (
	PolarityPreferred Polarity = "preferred"
	PolarityAvoid     Polarity = "avoid"
)

// VisualPreference is the structured payload of photographic and scene
// preferences, e.g. {lighting, preferred, natural}.
type VisualPreference struct {
	Dimension string   `json:"dimension"`
	Polarity  Polarity `json:"polarity"`
	Value     string   `json:"value"`
}

// VisualElement is a tagged variant: Preference is set exactly when Type is a
// preference type, Value otherwise.
type VisualElement struct {
	Type       VisualType        `json:"type"`
	Value      string            `json:"value,omitempty"`
	Preference *VisualPreference `json:"preference,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// ParseVisualPreference decodes the "<dimension>:<polarity>:<value>" form some
// models emit. A missing polarity defaults to preferred.
func ParseVisualPreference(raw string) (VisualPreference, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 3)
	switch len(parts) {
	case 3:
		polarity := Polarity(strings.ToLower(strings.TrimSpace(parts[1])))
		if polarity != PolarityPreferred && polarity != PolarityAvoid {
			return VisualPreference{}, false
		}
		pref := VisualPreference{
			Dimension: normalizeKey(parts[0]),
			Polarity:  polarity,
			Value:     strings.TrimSpace(parts[2]),
		}
		return pref, pref.Dimension != "" && pref.Value != ""
	case 2:
		pref := VisualPreference{
			Dimension: normalizeKey(parts[0]),
			Polarity:  PolarityPreferred,
			Value:     strings.TrimSpace(parts[1]),
		}
		return pref, pref.Dimension != "" && pref.Value != ""
	default:
		return VisualPreference{}, false
	}
}

// UnmarshalJSON accepts both the structured form and the flat string form for
// preference types, so stored and model-produced payloads decode to one shape.
func (v *VisualElement) UnmarshalJSON(data []byte) error {
	type plain VisualElement
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*v = VisualElement(decoded)
	v.Type = VisualType(normalizeKey(string(v.Type)))
	switch v.Type {
	case "photographic", "photo_preference":
		v.Type = VisualPhotographic
	case "scene":
		v.Type = VisualScene
	}
	if v.Type.IsPreference() && v.Preference == nil {
		if pref, ok := ParseVisualPreference(v.Value); ok {
			v.Preference = &pref
			v.Value = ""
		}
	}
	return nil
}

type ExtractedInsight struct {
	ID         string           `json:"id"`
	ArtifactID string           `json:"artifact_id"`
	BrandID    string           `json:"brand_id"`
	Voice      []VoiceElement   `json:"voice_elements"`
	Facts      []FactElement    `json:"facts"`
	Messages   []MessageElement `json:"key_messages"`
	Visual     []VisualElement  `json:"visual_elements"`
	Confidence float64          `json:"confidence"`
	Model      string           `json:"model"`
	RawOutput  string           `json:"raw_output,omitempty"`
	// Supersedes is the insight id this one replaces after re-extraction.
	Supersedes string    `json:"supersedes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Empty reports whether the extraction produced no usable items.
func (i *ExtractedInsight) Empty() bool {
	return len(i.Voice) == 0 && len(i.Facts) == 0 && len(i.Messages) == 0 && len(i.Visual) == 0
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
