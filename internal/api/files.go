package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediavault/internal/assets"
	"mediavault/internal/database/models"
	"mediavault/internal/httprange"
	"mediavault/internal/media"
)

// loadFile fetches the record and resolves its on-disk path in one go.
func (a *ApiManagerCtx) loadFile(w http.ResponseWriter, r *http.Request) (*models.File, string, bool) {
	file, err := a.store.Get(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		a.writeError(w, r, err)
		return nil, "", false
	}

	sourcePath, err := a.resolver.Resolve(file.Path)
	if err != nil {
		a.writeError(w, r, err)
		return nil, "", false
	}

	return file, sourcePath, true
}

func fileMetadata(file *models.File) media.Metadata {
	var meta media.Metadata
	if len(file.Metadata) > 0 {
		// a stale or unparseable blob degrades to zero values
		_ = json.Unmarshal(file.Metadata, &meta)
	}
	return meta
}

func (a *ApiManagerCtx) getFile(w http.ResponseWriter, r *http.Request) {
	file, err := a.store.Get(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, file)
}

// download serves the stored bytes with full range support. Lossless audio
// is transparently swapped for its Opus variant when one is enabled.
func (a *ApiManagerCtx) download(w http.ResponseWriter, r *http.Request) {
	file, sourcePath, ok := a.loadFile(w, r)
	if !ok {
		return
	}

	servePath := sourcePath
	contentType := file.MimeType

	if strings.HasPrefix(file.MimeType, "audio/") {
		meta := fileMetadata(file)
		if len(meta.AudioTracks) > 0 {
			if variant, replaced := a.cache.AudioVariant(r.Context(), file.ID, sourcePath, meta.AudioTracks[0].Codec); replaced {
				servePath = variant
				contentType = "audio/ogg"
			}
		}
	}

	w.Header().Set("Content-Disposition", "inline; filename=\""+file.Name+"\"")
	if err := httprange.ServeFile(w, r, servePath, contentType); err != nil {
		a.writeError(w, r, err)
	}
}

func (a *ApiManagerCtx) thumbnail(w http.ResponseWriter, r *http.Request) {
	file, sourcePath, ok := a.loadFile(w, r)
	if !ok {
		return
	}

	size, err := assets.ParseThumbnailSize(r.URL.Query().Get("size"))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	meta := fileMetadata(file)
	path, err := a.cache.Thumbnail(r.Context(), assets.ThumbnailRequest{
		FileID:     file.ID,
		SourcePath: sourcePath,
		Size:       size,
		IsVideo:    strings.HasPrefix(file.MimeType, "video/"),
		Duration:   meta.Duration,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.serveAsset(w, r, path, "image/webp")
}

func (a *ApiManagerCtx) sprite(w http.ResponseWriter, r *http.Request) {
	file, sourcePath, ok := a.loadFile(w, r)
	if !ok {
		return
	}

	if !strings.HasPrefix(file.MimeType, "video/") {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sprites require a video source"})
		return
	}

	meta := fileMetadata(file)
	path, _, err := a.cache.Sprite(r.Context(), file.ID, sourcePath, meta.Duration)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	// the sheet is encoded as JPEG, ffmpeg picks the codec from the extension
	a.serveAsset(w, r, path, "image/jpeg")
}

func (a *ApiManagerCtx) spriteMeta(w http.ResponseWriter, r *http.Request) {
	file, sourcePath, ok := a.loadFile(w, r)
	if !ok {
		return
	}

	if !strings.HasPrefix(file.MimeType, "video/") {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sprites require a video source"})
		return
	}

	meta := fileMetadata(file)
	_, spriteMeta, err := a.cache.Sprite(r.Context(), file.ID, sourcePath, meta.Duration)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, spriteMeta)
}

// waveform returns amplitude buckets as JSON, or a rendered image when
// image=1 is passed with optional width/height.
func (a *ApiManagerCtx) waveform(w http.ResponseWriter, r *http.Request) {
	file, sourcePath, ok := a.loadFile(w, r)
	if !ok {
		return
	}

	if !strings.HasPrefix(file.MimeType, "audio/") {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "waveforms require an audio source"})
		return
	}

	query := r.URL.Query()
	if query.Get("image") == "1" {
		width, _ := strconv.Atoi(query.Get("width"))
		height, _ := strconv.Atoi(query.Get("height"))

		path, err := a.cache.WaveformImage(r.Context(), file.ID, sourcePath, width, height)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.serveAsset(w, r, path, "image/png")
		return
	}

	peaks, err := a.cache.WaveformData(r.Context(), file.ID, sourcePath)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"peaks": peaks})
}

// serveAsset serves a derived asset with an effectively immutable cache
// header; derived outputs are pure functions of their inputs.
func (a *ApiManagerCtx) serveAsset(w http.ResponseWriter, r *http.Request, path string, contentType string) {
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if err := httprange.ServeFile(w, r, path, contentType); err != nil {
		a.writeError(w, r, err)
	}
}
