// Package extraction holds the model-facing contract shared by every
// InsightExtractor adapter: the prompt and the tolerant response parser.
package extraction

import (
	"fmt"
	"strings"

	"github.com/kirillkom/brand-soul/internal/core/ports"
)

// DefaultMaxChars caps the source text sent to the model.
const DefaultMaxChars = 24000

const instructions = `You analyze brand material and extract how the brand presents itself.
Return one strict JSON object with exactly these keys:
  "voice_elements": array of {"aspect": string, "value": string, "evidence": string, "confidence": number 0..1}
      aspects: "personality", "tone", "tone_avoid", "vocabulary", "formality", "sentence_style"
  "facts": array of {"category": string, "fact": string, "confidence": number 0..1}
      categories such as "company", "product", "audience", "history", "values", "pricing"
  "key_messages": array of {"theme": string, "message": string, "importance": integer 1..10}
  "visual_elements": array of {"type": string, "value": string, "confidence": number 0..1}
      types: "color", "font", "style", "imagery", "avoid",
             "photographic_preference" and "scene_preference" with value "<dimension>:<preferred|avoid>:<value>"
  "confidence": number 0..1 for the whole extraction
Only state what the material supports. Use empty arrays when nothing applies.
No markdown, no commentary, no extra keys.`

// BuildPrompt renders the extraction prompt for one artifact.
func BuildPrompt(input ports.ExtractionInput, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text := input.Text
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars])
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Artifact type: %s\n", input.ArtifactType)
	if title := strings.TrimSpace(input.Title); title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	b.WriteString("Material:\n")
	b.WriteString(text)
	return b.String()
}

// SystemPrompt is the instruction block for chat-style APIs that separate
// system and user turns.
func SystemPrompt() string {
	return instructions
}

// UserPrompt is BuildPrompt without the instruction block.
func UserPrompt(input ports.ExtractionInput, maxChars int) string {
	return strings.TrimPrefix(BuildPrompt(input, maxChars), instructions+"\n\n")
}
