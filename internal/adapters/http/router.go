package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/brand-soul/internal/config"
	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

// BlobServer serves payloads behind signed URLs.
type BlobServer interface {
	Verify(key, expires, sig string) error
	Get(ctx context.Context, key string) ([]byte, error)
	ContentType(key string) string
}

type Metrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
	RecordContextTokens(tokens int)
}

type Services struct {
	Ingestor  ports.ArtifactIngestor
	Artifacts ports.ArtifactService
	Souls     ports.BrandSoulService
	Context   ports.ContextBuilder
	Jobs      ports.JobService
	Blobs     BlobServer
	Metrics   Metrics
}

type Router struct {
	cfg      config.Config
	services Services
}

func NewRouter(cfg config.Config, services Services) *Router {
	return &Router{cfg: cfg, services: services}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.services.Metrics != nil {
		mux.Handle("GET /metrics", rt.services.Metrics.Handler())
	}

	mux.HandleFunc("POST /v1/brands/{brandID}/artifacts", rt.submitArtifact)
	mux.HandleFunc("GET /v1/brands/{brandID}/artifacts", rt.listArtifacts)
	mux.HandleFunc("GET /v1/brands/{brandID}/artifacts/{artifactID}", rt.getArtifact)
	mux.HandleFunc("DELETE /v1/brands/{brandID}/artifacts/{artifactID}", rt.deleteArtifact)
	mux.HandleFunc("GET /v1/brands/{brandID}/artifacts/{artifactID}/content-url", rt.artifactContentURL)
	mux.HandleFunc("POST /v1/brands/{brandID}/artifacts/{artifactID}/approve", rt.approveArtifact)
	mux.HandleFunc("POST /v1/brands/{brandID}/artifacts/{artifactID}/reject", rt.rejectArtifact)
	mux.HandleFunc("POST /v1/brands/{brandID}/artifacts/{artifactID}/archive", rt.archiveArtifact)
	mux.HandleFunc("POST /v1/brands/{brandID}/artifacts/{artifactID}/reprocess", rt.reprocessArtifact)
	mux.HandleFunc("POST /v1/brands/{brandID}/artifacts/{artifactID}/visibility/{action}", rt.changeVisibility)

	mux.HandleFunc("GET /v1/brands/{brandID}/soul", rt.getBrandSoul)
	mux.HandleFunc("GET /v1/brands/{brandID}/soul/versions", rt.listBrandSoulVersions)
	mux.HandleFunc("POST /v1/brands/{brandID}/soul/synthesize", rt.requestSynthesis)
	mux.HandleFunc("GET /v1/brands/{brandID}/context", rt.buildContext)

	mux.HandleFunc("GET /v1/jobs/{jobID}", rt.getJob)
	mux.HandleFunc("POST /v1/jobs/{jobID}/retry", rt.retryJob)
	mux.HandleFunc("POST /v1/jobs/{jobID}/run", rt.runJob)

	if rt.services.Blobs != nil {
		mux.HandleFunc("GET /blobs/{path...}", rt.serveBlob)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = recoverMiddleware(handler)
	if rt.services.Metrics != nil {
		handler = rt.services.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) serveBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("path")
	q := r.URL.Query()
	if err := rt.services.Blobs.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	data, err := rt.services.Blobs.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rt.services.Blobs.ContentType(key))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

func decodeJSONBody(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError hides internal error text behind 5xx responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		if status == http.StatusServiceUnavailable {
			message = "temporarily unavailable"
			w.Header().Set("Retry-After", "5")
		} else {
			message = "internal error"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		message = "request timed out"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func parseDurationParam(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse duration", errors.New("invalid duration "+raw))
	}
	return d, nil
}
