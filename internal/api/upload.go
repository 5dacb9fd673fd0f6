package api

import (
	"net/http"
	"strconv"

	"mediavault/internal/upload"
)

// chunk uploads are limited to this much memory before spooling to disk
const chunkMemoryLimit = 32 << 20

// uploadChunk accepts one multipart chunk of a resumable upload. Until the
// final chunk lands the response is 202 with no body; the completing chunk
// returns the created file record.
func (a *ApiManagerCtx) uploadChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(chunkMemoryLimit); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed multipart body"})
		return
	}

	uploadID := r.FormValue("uploadId")
	if uploadID == "" {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "uploadId is required"})
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chunkIndex must be a non-negative integer"})
		return
	}

	totalChunks, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil || totalChunks < 1 {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "totalChunks must be a positive integer"})
		return
	}

	fileName := r.FormValue("fileName")
	if fileName == "" {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "fileName is required"})
		return
	}

	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chunk field is required"})
		return
	}
	defer chunk.Close()

	file, err := a.assembler.WriteChunk(r.Context(), upload.ChunkRequest{
		UploadID:    uploadID,
		Index:       chunkIndex,
		TotalChunks: totalChunks,
		FileName:    fileName,
		FolderID:    r.FormValue("folderId"),
		MimeType:    r.FormValue("mimeType"),
		Data:        chunk,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if file == nil {
		// accepted, upload not yet complete
		w.WriteHeader(http.StatusAccepted)
		return
	}

	a.writeJSON(w, http.StatusCreated, file)
}
