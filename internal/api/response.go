package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"mediavault/internal/files"
	"mediavault/internal/media"
	"mediavault/internal/queue"
	"mediavault/internal/stream"
	"mediavault/internal/upload"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (a *ApiManagerCtx) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Err(err).Msg("unable to write json response")
	}
}

// writeError maps domain sentinels onto HTTP statuses. Anything unmapped is
// a 500 with a generic body, details go to the log only.
func (a *ApiManagerCtx) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, files.ErrNotFound),
		errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, stream.ErrStreamNotReady):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
		message = "file not found"
	case errors.Is(err, files.ErrConflict),
		errors.Is(err, queue.ErrNotCancellable),
		errors.Is(err, stream.ErrNotTransmuxable):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, upload.ErrInvalidChunk),
		errors.Is(err, stream.ErrInvalidName):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, stream.ErrNotStreamable):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, media.ErrProbeFailed):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		a.logger.Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	a.writeJSON(w, status, errorResponse{Error: message})
}
