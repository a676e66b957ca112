package domain

import "time"

type PersonalityTrait struct {
	Trait    string   `json:"trait"`
	Strength float64  `json:"strength"`
	Evidence []string `json:"evidence,omitempty"`
}

// VoiceAspect holds the deduplicated values observed for one voice aspect
// (tone, vocabulary, writing style, ...).
type VoiceAspect struct {
	Aspect   string   `json:"aspect"`
	Values   []string `json:"values"`
	Evidence []string `json:"evidence,omitempty"`
}

type VoiceProfile struct {
	Personality []PersonalityTrait `json:"personality"`
	Tone        ToneProfile        `json:"tone"`
	Aspects     []VoiceAspect      `json:"aspects"`
}

type ToneProfile struct {
	Primary   string   `json:"primary,omitempty"`
	Secondary []string `json:"secondary,omitempty"`
	Avoid     []string `json:"avoid,omitempty"`
}

type BrandFact struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Fact       string   `json:"fact"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

type FactLibrary struct {
	Facts      []BrandFact `json:"facts"`
	Categories []string    `json:"categories"`
}

type KeyMessage struct {
	Message    string   `json:"message"`
	Importance int      `json:"importance"`
	Frequency  int      `json:"frequency"`
	Sources    []string `json:"sources"`
}

type MessageTheme struct {
	Theme    string       `json:"theme"`
	Messages []KeyMessage `json:"messages"`
}

type MessagingFramework struct {
	Themes []MessageTheme `json:"themes"`
}

// PreferenceBucket collects the preferred and avoided values of one
// photographic or scene dimension, each value appearing once.
type PreferenceBucket struct {
	Dimension string   `json:"dimension"`
	Preferred []string `json:"preferred,omitempty"`
	Avoid     []string `json:"avoid,omitempty"`
}

type ImageStyle struct {
	Styles       []string           `json:"styles,omitempty"`
	Imagery      []string           `json:"imagery,omitempty"`
	Avoid        []string           `json:"avoid,omitempty"`
	Photographic []PreferenceBucket `json:"photographic,omitempty"`
	Scene        []PreferenceBucket `json:"scene,omitempty"`
}

type VisualIdentity struct {
	Colors     []string   `json:"colors,omitempty"`
	Typography []string   `json:"typography,omitempty"`
	ImageStyle ImageStyle `json:"image_style"`
}

type BrandSoulStats struct {
	SourceCount     int     `json:"source_count"`
	FactCount       int     `json:"fact_count"`
	ConfidenceScore float64 `json:"confidence_score"`
	HealthScore     int     `json:"health_score"`
}

type BrandSoul struct {
	BrandID         string             `json:"brand_id"`
	Voice           VoiceProfile       `json:"voice_profile"`
	Facts           FactLibrary        `json:"fact_library"`
	Messaging       MessagingFramework `json:"messaging_framework"`
	Visual          *VisualIdentity    `json:"visual_identity,omitempty"`
	Stats           BrandSoulStats     `json:"stats"`
	SourceArtifacts []string           `json:"source_artifacts"`
	LatestVersionID string             `json:"latest_version_id"`
	CreatedBy       string             `json:"created_by"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedBy       string             `json:"updated_by"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// BrandSoulVersion is an immutable snapshot appended on every synthesis.
type BrandSoulVersion struct {
	VersionID string    `json:"version_id"`
	BrandID   string    `json:"brand_id"`
	Snapshot  BrandSoul `json:"snapshot"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type SynthesisOptions struct {
	Force  bool   `json:"force"`
	UserID string `json:"user_id,omitempty"`
}

type SynthesisResult struct {
	BrandID   string     `json:"brand_id"`
	Skipped   bool       `json:"skipped"`
	VersionID string     `json:"version_id,omitempty"`
	Soul      *BrandSoul `json:"soul,omitempty"`
	Sources   int        `json:"sources"`
}
