package domain

import (
	"fmt"
	"time"
)

type ArtifactType string

const (
	ArtifactWebsite  ArtifactType = "website"
	ArtifactDocument ArtifactType = "document"
	ArtifactImage    ArtifactType = "image"
	ArtifactVideo    ArtifactType = "video"
	ArtifactText     ArtifactType = "text"
	ArtifactSocial   ArtifactType = "social"
)

func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactWebsite, ArtifactDocument, ArtifactImage, ArtifactVideo, ArtifactText, ArtifactSocial:
		return true
	default:
		return false
	}
}

type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactProcessing ArtifactStatus = "processing"
	ArtifactExtracting ArtifactStatus = "extracting"
	ArtifactExtracted  ArtifactStatus = "extracted"
	ArtifactApproved   ArtifactStatus = "approved"
	ArtifactRejected   ArtifactStatus = "rejected"
	ArtifactFailed     ArtifactStatus = "failed"
	ArtifactArchived   ArtifactStatus = "archived"
)

var AllArtifactStatuses = []ArtifactStatus{
	ArtifactPending,
	ArtifactProcessing,
	ArtifactExtracting,
	ArtifactExtracted,
	ArtifactApproved,
	ArtifactRejected,
	ArtifactFailed,
	ArtifactArchived,
}

// artifactTransitions lists the explicit edges of the lifecycle. Every
// non-terminal state may additionally move to failed.
var artifactTransitions = map[ArtifactStatus][]ArtifactStatus{
	ArtifactPending:    {ArtifactProcessing, ArtifactArchived},
	ArtifactProcessing: {ArtifactExtracting},
	ArtifactExtracting: {ArtifactExtracted},
	ArtifactExtracted:  {ArtifactApproved, ArtifactRejected, ArtifactPending, ArtifactArchived},
	ArtifactApproved:   {ArtifactRejected, ArtifactPending, ArtifactArchived},
	ArtifactRejected:   {ArtifactApproved, ArtifactPending, ArtifactArchived},
	ArtifactFailed:     {ArtifactPending, ArtifactArchived},
	ArtifactArchived:   {},
}

func (s ArtifactStatus) Valid() bool {
	_, ok := artifactTransitions[s]
	return ok
}

// SynthesisEligible reports whether an artifact in this state feeds the Brand Soul.
func (s ArtifactStatus) SynthesisEligible() bool {
	return s == ArtifactExtracted || s == ArtifactApproved
}

// HasInsights reports whether the state requires a persisted insight reference.
func (s ArtifactStatus) HasInsights() bool {
	return s == ArtifactExtracted || s == ArtifactApproved || s == ArtifactRejected
}

// InFlight reports whether an extraction currently owns the artifact.
func (s ArtifactStatus) InFlight() bool {
	return s == ArtifactProcessing || s == ArtifactExtracting
}

// NextArtifactStatuses returns every state reachable from s in one step.
func NextArtifactStatuses(s ArtifactStatus) []ArtifactStatus {
	next := append([]ArtifactStatus(nil), artifactTransitions[s]...)
	if s != ArtifactFailed && s != ArtifactArchived {
		next = append(next, ArtifactFailed)
	}
	return next
}

func CanTransitionArtifact(from, to ArtifactStatus) bool {
	for _, candidate := range NextArtifactStatuses(from) {
		if candidate == to {
			return true
		}
	}
	return false
}

type Visibility string

const (
	VisibilityPrivate         Visibility = "private"
	VisibilityPendingApproval Visibility = "pending_approval"
	VisibilityTeam            Visibility = "team"
)

var visibilityTransitions = map[Visibility][]Visibility{
	VisibilityPrivate:         {VisibilityPendingApproval},
	VisibilityPendingApproval: {VisibilityTeam, VisibilityPrivate},
	VisibilityTeam:            {VisibilityPrivate},
}

func (v Visibility) Valid() bool {
	_, ok := visibilityTransitions[v]
	return ok
}

func CanTransitionVisibility(from, to Visibility) bool {
	for _, candidate := range visibilityTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ContentRef points at a payload held by the content store.
type ContentRef struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// InsightsRef points at the current extracted insight of an artifact.
type InsightsRef struct {
	InsightID   string    `json:"insight_id"`
	Path        string    `json:"path"`
	Confidence  float64   `json:"confidence"`
	Model       string    `json:"model"`
	ExtractedAt time.Time `json:"extracted_at"`
}

type Artifact struct {
	ID        string         `json:"id"`
	BrandID   string         `json:"brand_id"`
	Type      ArtifactType   `json:"type"`
	Title     string         `json:"title,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
	MimeType  string         `json:"mime_type,omitempty"`
	Status    ArtifactStatus `json:"status"`

	Visibility       Visibility `json:"visibility"`
	VisibilityReason string     `json:"visibility_reason,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`

	Checksum  string       `json:"checksum"`
	Content   ContentRef   `json:"content"`
	Processed *ContentRef  `json:"processed,omitempty"`
	Insights  *InsightsRef `json:"insights,omitempty"`

	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
	Priority   int    `json:"priority"`

	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Validate checks the structural invariants of a persisted artifact.
func (a *Artifact) Validate() error {
	if a.ID == "" || a.BrandID == "" {
		return fmt.Errorf("artifact id and brand id are required")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown artifact type %q", a.Type)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unknown artifact status %q", a.Status)
	}
	if !a.Visibility.Valid() {
		return fmt.Errorf("unknown visibility %q", a.Visibility)
	}
	if a.Status.HasInsights() && a.Insights == nil {
		return fmt.Errorf("artifact %s in status %s has no insights reference", a.ID, a.Status)
	}
	return nil
}

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// NormalizePriority maps zero to the default and clamps to [MinPriority, MaxPriority].
func NormalizePriority(p int) int {
	switch {
	case p == 0:
		return DefaultPriority
	case p < MinPriority:
		return MinPriority
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}

type ArtifactFilter struct {
	Statuses []ArtifactStatus
	Limit    int
	Cursor   string
}

type ArtifactPage struct {
	Artifacts  []Artifact `json:"artifacts"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// Content kinds stored per artifact under <brand>/artifacts/<id>/<kind>.
type ContentKind string

const (
	ContentSource    ContentKind = "source"
	ContentProcessed ContentKind = "processed"
	ContentInsights  ContentKind = "insights"
)

// ArtifactPrefix is the content store prefix owning every payload of an artifact.
func ArtifactPrefix(brandID, artifactID string) string {
	return brandID + "/artifacts/" + artifactID + "/"
}

func SourcePath(brandID, artifactID string) string {
	return ArtifactPrefix(brandID, artifactID) + string(ContentSource)
}

func ProcessedTextPath(brandID, artifactID string) string {
	return ArtifactPrefix(brandID, artifactID) + string(ContentProcessed) + "/text.txt"
}

func InsightPath(brandID, artifactID, insightID string) string {
	return ArtifactPrefix(brandID, artifactID) + string(ContentInsights) + "/" + insightID + ".json"
}
