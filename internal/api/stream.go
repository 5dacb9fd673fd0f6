package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediavault/internal/httprange"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/MP2T"
)

func (a *ApiManagerCtx) streamInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.streams.GetStreamInfo(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, info)
}

func (a *ApiManagerCtx) streamPrepare(w http.ResponseWriter, r *http.Request) {
	result, err := a.streams.Prepare(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, result)
}

// masterPlaylist serves the variant list with the caller's token injected
// into every sub-resource reference. Manifests are never cached, stream
// availability can change under the client.
func (a *ApiManagerCtx) masterPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := a.streams.MasterPlaylist(chi.URLParam(r, "fileId"), r.URL.Query().Get("token"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.servePlaylist(w, playlist)
}

func (a *ApiManagerCtx) mediaPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := a.streams.MediaPlaylist(
		chi.URLParam(r, "fileId"),
		chi.URLParam(r, "quality"),
		r.URL.Query().Get("token"),
	)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.servePlaylist(w, playlist)
}

func (a *ApiManagerCtx) servePlaylist(w http.ResponseWriter, playlist string) {
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	//nolint
	_, _ = w.Write([]byte(playlist))
}

// segment serves one transport stream chunk. Segments are immutable once
// written, so clients may cache them forever.
func (a *ApiManagerCtx) segment(w http.ResponseWriter, r *http.Request) {
	path, err := a.streams.SegmentPath(
		chi.URLParam(r, "fileId"),
		chi.URLParam(r, "quality"),
		chi.URLParam(r, "segment"),
	)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if err := httprange.ServeFile(w, r, path, segmentContentType); err != nil {
		a.writeError(w, r, err)
	}
}

func (a *ApiManagerCtx) subtitle(w http.ResponseWriter, r *http.Request) {
	subtitle, err := a.store.Subtitle(r.Context(), chi.URLParam(r, "fileId"), chi.URLParam(r, "lang"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	path, err := a.resolver.Resolve(subtitle.Path)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if err := httprange.ServeFile(w, r, path, "text/vtt"); err != nil {
		a.writeError(w, r, err)
	}
}
