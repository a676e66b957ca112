package httpadapter

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type submitArtifactRequest struct {
	Type      domain.ArtifactType `json:"type"`
	Title     string              `json:"title"`
	SourceURL string              `json:"source_url"`
	MimeType  string              `json:"mime_type"`
	Content   string              `json:"content"`
	Priority  int                 `json:"priority"`
}

func (rt *Router) submitArtifact(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.APIMaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	input, err := rt.readSubmission(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "artifact exceeds upload limit")
			return
		}
		writeDomainError(w, r, err)
		return
	}
	input.BrandID = r.PathValue("brandID")
	input.UserID = userID(r)

	result, err := rt.services.Ingestor.Submit(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (rt *Router) readSubmission(r *http.Request) (ports.SubmitArtifactInput, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return readMultipartSubmission(r)
	}

	var req submitArtifactRequest
	if err := decodeJSONBody(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ports.SubmitArtifactInput{}, tooLarge
		}
		return ports.SubmitArtifactInput{}, err
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "text/plain; charset=utf-8"
	}
	return ports.SubmitArtifactInput{
		Type:      req.Type,
		Title:     req.Title,
		SourceURL: req.SourceURL,
		MimeType:  mimeType,
		Content:   []byte(req.Content),
		Priority:  req.Priority,
	}, nil
}

func readMultipartSubmission(r *http.Request) (ports.SubmitArtifactInput, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ports.SubmitArtifactInput{}, tooLarge
		}
		return ports.SubmitArtifactInput{}, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart field 'file' is required"))
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return ports.SubmitArtifactInput{}, err
	}
	priority := 0
	if raw := r.FormValue("priority"); raw != "" {
		priority, err = strconv.Atoi(raw)
		if err != nil {
			return ports.SubmitArtifactInput{}, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("priority must be an integer"))
		}
	}
	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	mimeType := header.Header.Get("Content-Type")
	if override := r.FormValue("mime_type"); override != "" {
		mimeType = override
	}
	return ports.SubmitArtifactInput{
		Type:      domain.ArtifactType(r.FormValue("type")),
		Title:     title,
		SourceURL: r.FormValue("source_url"),
		MimeType:  mimeType,
		Content:   content,
		Priority:  priority,
	}, nil
}

func (rt *Router) listArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ArtifactFilter{Cursor: q.Get("cursor")}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, domain.ArtifactStatus(s))
			}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	page, err := rt.services.Artifacts.List(r.Context(), userID(r), r.PathValue("brandID"), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := rt.services.Artifacts.Get(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func (rt *Router) deleteArtifact(w http.ResponseWriter, r *http.Request) {
	if err := rt.services.Artifacts.Delete(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) artifactContentURL(w http.ResponseWriter, r *http.Request) {
	ttl, err := parseDurationParam(r.URL.Query().Get("ttl"), rt.cfg.SignedURLTTL)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	url, err := rt.services.Artifacts.ContentURL(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID"), ttl)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "expires_in_seconds": int(ttl.Seconds())})
}

func (rt *Router) approveArtifact(w http.ResponseWriter, r *http.Request) {
	rt.writeArtifact(w, r)(rt.services.Artifacts.Approve(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID")))
}

func (rt *Router) rejectArtifact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	rt.writeArtifact(w, r)(rt.services.Artifacts.Reject(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID"), req.Reason))
}

func (rt *Router) archiveArtifact(w http.ResponseWriter, r *http.Request) {
	rt.writeArtifact(w, r)(rt.services.Artifacts.Archive(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID")))
}

func (rt *Router) reprocessArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := rt.services.Artifacts.Reprocess(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, artifact)
}

var visibilityActions = map[string]domain.Visibility{
	"request": domain.VisibilityPendingApproval,
	"approve": domain.VisibilityTeam,
	"reject":  domain.VisibilityPrivate,
}

func (rt *Router) changeVisibility(w http.ResponseWriter, r *http.Request) {
	to, ok := visibilityActions[r.PathValue("action")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown visibility action")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	rt.writeArtifact(w, r)(rt.services.Artifacts.SetVisibility(r.Context(), userID(r), r.PathValue("brandID"), r.PathValue("artifactID"), to, req.Reason))
}

func (rt *Router) writeArtifact(w http.ResponseWriter, r *http.Request) func(*domain.Artifact, error) {
	return func(artifact *domain.Artifact, err error) {
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, artifact)
	}
}
