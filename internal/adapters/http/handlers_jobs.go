package httpadapter

import (
	"net/http"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	rt.writeJob(w, r, http.StatusOK)(rt.services.Jobs.Get(r.Context(), userID(r), r.PathValue("jobID")))
}

func (rt *Router) retryJob(w http.ResponseWriter, r *http.Request) {
	rt.writeJob(w, r, http.StatusAccepted)(rt.services.Jobs.Retry(r.Context(), userID(r), r.PathValue("jobID")))
}

// runJob executes synchronously; the response carries the job's final state
// even when the job itself failed.
func (rt *Router) runJob(w http.ResponseWriter, r *http.Request) {
	rt.writeJob(w, r, http.StatusOK)(rt.services.Jobs.Run(r.Context(), userID(r), r.PathValue("jobID")))
}

func (rt *Router) writeJob(w http.ResponseWriter, r *http.Request, status int) func(*domain.Job, error) {
	return func(job *domain.Job, err error) {
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, status, job)
	}
}
