package httpadapter

import (
	"net/http"
	"strconv"
)

func (rt *Router) getBrandSoul(w http.ResponseWriter, r *http.Request) {
	soul, err := rt.services.Souls.Get(r.Context(), userID(r), r.PathValue("brandID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, soul)
}

func (rt *Router) listBrandSoulVersions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	versions, err := rt.services.Souls.Versions(r.Context(), userID(r), r.PathValue("brandID"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (rt *Router) requestSynthesis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	job, err := rt.services.Souls.RequestSynthesis(r.Context(), userID(r), r.PathValue("brandID"), req.Force)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}
