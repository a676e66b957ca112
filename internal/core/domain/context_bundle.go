package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type ContextRequest struct {
	BrandID string
	UserID  string
	// Comprehensive adds per-artifact insights and full extracted text.
	Comprehensive bool
	MaxArtifacts  int
	// TokenBudget bounds the bundle's estimated size; zero means unbounded.
	TokenBudget int
}

type ContextSection struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type ContextBundle struct {
	BrandID         string           `json:"brand_id"`
	Sections        []ContextSection `json:"sections"`
	ArtifactCount   int              `json:"artifact_count"`
	EstimatedTokens int              `json:"estimated_tokens"`
	Truncated       bool             `json:"truncated"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

const sectionSeparator = "\n\n"

// Text renders the bundle as the prompt text handed to generation features.
func (b *ContextBundle) Text() string {
	parts := make([]string, 0, len(b.Sections))
	for _, s := range b.Sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, sectionSeparator)
}

// EstimateTokens approximates model tokens as a quarter of the character count.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
