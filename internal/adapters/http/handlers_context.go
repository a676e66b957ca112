package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

type contextResponse struct {
	*domain.ContextBundle
	Text string `json:"text"`
}

func (rt *Router) buildContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.ContextRequest{
		BrandID: r.PathValue("brandID"),
		UserID:  userID(r),
	}
	if raw := q.Get("comprehensive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "comprehensive must be a boolean")
			return
		}
		req.Comprehensive = v
	}
	for param, dst := range map[string]*int{"maxArtifacts": &req.MaxArtifacts, "tokenBudget": &req.TokenBudget} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, param+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	bundle, err := rt.services.Context.BuildContext(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rt.services.Metrics != nil {
		rt.services.Metrics.RecordContextTokens(bundle.EstimatedTokens)
	}
	writeJSON(w, http.StatusOK, contextResponse{ContextBundle: bundle, Text: bundle.Text()})
}
