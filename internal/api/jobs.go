package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *ApiManagerCtx) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.transcoder.Job(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, job)
}

// jobCancel removes a job that has not started yet. A processing or
// finished job is not cancellable and the request conflicts.
func (a *ApiManagerCtx) jobCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.transcoder.Cancel(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
