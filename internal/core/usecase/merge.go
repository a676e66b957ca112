package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

const (
	DefaultTraitStrength  = 0.7
	DefaultFactConfidence = 0.8
	DefaultImportance     = 5
)

// SourceInsight is one artifact's contribution to a synthesis.
type SourceInsight struct {
	ArtifactID string
	Insight    *domain.ExtractedInsight
}

// MergeInsights deterministically unions every source into Brand Soul
// sub-documents. Identity fields and version pointers are left to the caller.
func MergeInsights(sources []SourceInsight) domain.BrandSoul {
	ordered := append([]SourceInsight(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ArtifactID < ordered[j].ArtifactID })

	soul := domain.BrandSoul{
		Voice:           mergeVoice(ordered),
		Facts:           mergeFacts(ordered),
		Messaging:       mergeMessages(ordered),
		Visual:          mergeVisual(ordered),
		SourceArtifacts: make([]string, 0, len(ordered)),
	}
	for _, s := range ordered {
		soul.SourceArtifacts = append(soul.SourceArtifacts, s.ArtifactID)
	}
	soul.Stats = computeStats(ordered, &soul)
	return soul
}

// valueSet deduplicates case-insensitively and keeps the first spelling.
type valueSet struct {
	index map[string]string
}

func newValueSet() *valueSet {
	return &valueSet{index: make(map[string]string)}
}

func (s *valueSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	key := foldKey(v)
	if _, ok := s.index[key]; !ok {
		s.index[key] = v
	}
}

func (s *valueSet) sorted() []string {
	out := make([]string, 0, len(s.index))
	for _, v := range s.index {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return foldKey(out[i]) < foldKey(out[j]) })
	return out
}

func (s *valueSet) size() int { return len(s.index) }

func foldKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func aspectKey(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(foldKey(s), " ", "_"), "-", "_")
}

func mergeVoice(sources []SourceInsight) domain.VoiceProfile {
	type traitAcc struct {
		name        string
		confidences []float64
		evidence    *valueSet
	}
	traits := make(map[string]*traitAcc)
	toneCounts := make(map[string]int)
	toneNames := make(map[string]string)
	toneAvoid := newValueSet()
	aspects := make(map[string]*valueSet)
	aspectEvidence := make(map[string]*valueSet)

	for _, src := range sources {
		for _, el := range src.Insight.Voice {
			value := strings.TrimSpace(el.Value)
			if value == "" {
				continue
			}
			switch key := aspectKey(el.Aspect); key {
			case "personality", "personality_trait", "trait":
				tk := foldKey(value)
				acc, ok := traits[tk]
				if !ok {
					acc = &traitAcc{name: value, evidence: newValueSet()}
					traits[tk] = acc
				}
				if el.Confidence > 0 {
					acc.confidences = append(acc.confidences, el.Confidence)
				}
				acc.evidence.add(el.Evidence)
			case "tone_avoid", "avoid_tone":
				toneAvoid.add(value)
			default:
				if key == "" {
					key = "general"
				}
				if key == "tone" {
					tk := foldKey(value)
					toneCounts[tk]++
					if _, ok := toneNames[tk]; !ok {
						toneNames[tk] = value
					}
				}
				if aspects[key] == nil {
					aspects[key] = newValueSet()
					aspectEvidence[key] = newValueSet()
				}
				aspects[key].add(value)
				aspectEvidence[key].add(el.Evidence)
			}
		}
	}

	profile := domain.VoiceProfile{
		Personality: make([]domain.PersonalityTrait, 0, len(traits)),
		Aspects:     make([]domain.VoiceAspect, 0, len(aspects)),
	}
	for _, acc := range traits {
		strength := DefaultTraitStrength
		if len(acc.confidences) > 0 {
			strength = round(mean(acc.confidences))
		}
		profile.Personality = append(profile.Personality, domain.PersonalityTrait{
			Trait:    acc.name,
			Strength: strength,
			Evidence: acc.evidence.sorted(),
		})
	}
	sort.Slice(profile.Personality, func(i, j int) bool {
		a, b := profile.Personality[i], profile.Personality[j]
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return foldKey(a.Trait) < foldKey(b.Trait)
	})

	tones := make([]string, 0, len(toneCounts))
	for k := range toneCounts {
		tones = append(tones, k)
	}
	sort.Slice(tones, func(i, j int) bool {
		if toneCounts[tones[i]] != toneCounts[tones[j]] {
			return toneCounts[tones[i]] > toneCounts[tones[j]]
		}
		return tones[i] < tones[j]
	})
	for i, k := range tones {
		if i == 0 {
			profile.Tone.Primary = toneNames[k]
			continue
		}
		profile.Tone.Secondary = append(profile.Tone.Secondary, toneNames[k])
	}
	profile.Tone.Avoid = toneAvoid.sorted()

	keys := make([]string, 0, len(aspects))
	for k := range aspects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		profile.Aspects = append(profile.Aspects, domain.VoiceAspect{
			Aspect:   k,
			Values:   aspects[k].sorted(),
			Evidence: aspectEvidence[k].sorted(),
		})
	}
	return profile
}

func mergeFacts(sources []SourceInsight) domain.FactLibrary {
	type factAcc struct {
		fact       domain.BrandFact
		confidence float64
		sources    map[string]struct{}
	}
	facts := make(map[string]*factAcc)
	categories := newValueSet()

	for _, src := range sources {
		for _, el := range src.Insight.Facts {
			text := strings.TrimSpace(el.Fact)
			if text == "" {
				continue
			}
			category := strings.TrimSpace(el.Category)
			if category == "" {
				category = "general"
			}
			key := aspectKey(category) + "\x00" + foldKey(text)
			acc, ok := facts[key]
			if !ok {
				acc = &factAcc{
					fact: domain.BrandFact{
						ID:       Checksum([]byte(key))[:16],
						Category: category,
						Fact:     text,
					},
					sources: make(map[string]struct{}),
				}
				facts[key] = acc
				categories.add(category)
			}
			if el.Confidence > acc.confidence {
				acc.confidence = el.Confidence
			}
			acc.sources[src.ArtifactID] = struct{}{}
		}
	}

	lib := domain.FactLibrary{
		Facts:      make([]domain.BrandFact, 0, len(facts)),
		Categories: categories.sorted(),
	}
	for _, acc := range facts {
		acc.fact.Confidence = DefaultFactConfidence
		if acc.confidence > 0 {
			acc.fact.Confidence = round(acc.confidence)
		}
		acc.fact.Sources = sortedKeys(acc.sources)
		lib.Facts = append(lib.Facts, acc.fact)
	}
	sort.Slice(lib.Facts, func(i, j int) bool {
		a, b := lib.Facts[i], lib.Facts[j]
		if ca, cb := foldKey(a.Category), foldKey(b.Category); ca != cb {
			return ca < cb
		}
		return foldKey(a.Fact) < foldKey(b.Fact)
	})
	return lib
}

func mergeMessages(sources []SourceInsight) domain.MessagingFramework {
	type msgAcc struct {
		msg     domain.KeyMessage
		sources map[string]struct{}
	}
	themes := make(map[string]map[string]*msgAcc)
	themeNames := make(map[string]string)

	for _, src := range sources {
		for _, el := range src.Insight.Messages {
			text := strings.TrimSpace(el.Message)
			if text == "" {
				continue
			}
			theme := strings.TrimSpace(el.Theme)
			if theme == "" {
				theme = "general"
			}
			tk := foldKey(theme)
			if themes[tk] == nil {
				themes[tk] = make(map[string]*msgAcc)
				themeNames[tk] = theme
			}
			mk := foldKey(text)
			acc, ok := themes[tk][mk]
			if !ok {
				acc = &msgAcc{msg: domain.KeyMessage{Message: text}, sources: make(map[string]struct{})}
				themes[tk][mk] = acc
			}
			if el.Importance > acc.msg.Importance {
				acc.msg.Importance = el.Importance
			}
			acc.sources[src.ArtifactID] = struct{}{}
		}
	}

	keys := make([]string, 0, len(themes))
	for k := range themes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	framework := domain.MessagingFramework{Themes: make([]domain.MessageTheme, 0, len(keys))}
	for _, tk := range keys {
		theme := domain.MessageTheme{Theme: themeNames[tk]}
		for _, acc := range themes[tk] {
			if acc.msg.Importance == 0 {
				acc.msg.Importance = DefaultImportance
			}
			acc.msg.Sources = sortedKeys(acc.sources)
			acc.msg.Frequency = len(acc.msg.Sources)
			theme.Messages = append(theme.Messages, acc.msg)
		}
		sort.Slice(theme.Messages, func(i, j int) bool {
			a, b := theme.Messages[i], theme.Messages[j]
			if a.Frequency != b.Frequency {
				return a.Frequency > b.Frequency
			}
			if a.Importance != b.Importance {
				return a.Importance > b.Importance
			}
			return foldKey(a.Message) < foldKey(b.Message)
		})
		framework.Themes = append(framework.Themes, theme)
	}
	return framework
}

type preferenceAcc struct {
	preferred *valueSet
	avoid     *valueSet
}

func mergeVisual(sources []SourceInsight) *domain.VisualIdentity {
	colors, fonts := newValueSet(), newValueSet()
	styles, imagery, avoid := newValueSet(), newValueSet(), newValueSet()
	photographic := make(map[string]*preferenceAcc)
	scene := make(map[string]*preferenceAcc)
	seen := false

	for _, src := range sources {
		for _, el := range src.Insight.Visual {
			switch el.Type {
			case domain.VisualColor:
				colors.add(el.Value)
			case domain.VisualFont:
				fonts.add(el.Value)
			case domain.VisualStyle:
				styles.add(el.Value)
			case domain.VisualImagery:
				imagery.add(el.Value)
			case domain.VisualAvoid:
				avoid.add(el.Value)
			case domain.VisualPhotographic:
				addPreference(photographic, el.Preference)
			case domain.VisualScene:
				addPreference(scene, el.Preference)
			default:
				continue
			}
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &domain.VisualIdentity{
		Colors:     colors.sorted(),
		Typography: fonts.sorted(),
		ImageStyle: domain.ImageStyle{
			Styles:       styles.sorted(),
			Imagery:      imagery.sorted(),
			Avoid:        avoid.sorted(),
			Photographic: preferenceBuckets(photographic),
			Scene:        preferenceBuckets(scene),
		},
	}
}

func addPreference(buckets map[string]*preferenceAcc, pref *domain.VisualPreference) {
	if pref == nil || strings.TrimSpace(pref.Value) == "" {
		return
	}
	dim := aspectKey(pref.Dimension)
	if dim == "" {
		dim = "general"
	}
	acc, ok := buckets[dim]
	if !ok {
		acc = &preferenceAcc{preferred: newValueSet(), avoid: newValueSet()}
		buckets[dim] = acc
	}
	if pref.Polarity == domain.PolarityAvoid {
		acc.avoid.add(pref.Value)
		return
	}
	acc.preferred.add(pref.Value)
}

func preferenceBuckets(buckets map[string]*preferenceAcc) []domain.PreferenceBucket {
	if len(buckets) == 0 {
		return nil
	}
	dims := make([]string, 0, len(buckets))
	for d := range buckets {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	out := make([]domain.PreferenceBucket, 0, len(dims))
	for _, d := range dims {
		acc := buckets[d]
		bucket := domain.PreferenceBucket{Dimension: d}
		if acc.preferred.size() > 0 {
			bucket.Preferred = acc.preferred.sorted()
		}
		if acc.avoid.size() > 0 {
			bucket.Avoid = acc.avoid.sorted()
		}
		out = append(out, bucket)
	}
	return out
}

// computeStats scores the merged profile. Health blends section coverage
// (40), mean confidence (40) and source count up to five (20).
func computeStats(sources []SourceInsight, soul *domain.BrandSoul) domain.BrandSoulStats {
	confidences := make([]float64, 0, len(sources))
	for _, s := range sources {
		confidences = append(confidences, s.Insight.Confidence)
	}
	confidence := round(mean(confidences))

	covered := 0
	if len(soul.Voice.Personality) > 0 || len(soul.Voice.Aspects) > 0 {
		covered++
	}
	if len(soul.Facts.Facts) > 0 {
		covered++
	}
	if len(soul.Messaging.Themes) > 0 {
		covered++
	}
	if soul.Visual != nil {
		covered++
	}
	sourceScore := math.Min(float64(len(sources)), 5) / 5

	health := float64(covered)/4*40 + math.Min(confidence, 1)*40 + sourceScore*20
	return domain.BrandSoulStats{
		SourceCount:     len(sources),
		FactCount:       len(soul.Facts.Facts),
		ConfidenceScore: confidence,
		HealthScore:     int(math.Round(health)),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
