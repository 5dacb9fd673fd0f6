package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mediavault/internal/assets"
	"mediavault/internal/files"
	"mediavault/internal/queue"
	"mediavault/internal/stream"
	"mediavault/internal/upload"
)

// ApiManagerCtx mounts the media API. All routes live under /api.
type ApiManagerCtx struct {
	logger zerolog.Logger

	store      files.Store
	resolver   *files.Resolver
	assembler  *upload.Assembler
	cache      *assets.Cache
	transcoder queue.Transcoder
	streams    *stream.Service
}

func New(
	store files.Store,
	resolver *files.Resolver,
	assembler *upload.Assembler,
	cache *assets.Cache,
	transcoder queue.Transcoder,
	streams *stream.Service,
) *ApiManagerCtx {
	return &ApiManagerCtx{
		logger:     log.With().Str("module", "api").Logger(),
		store:      store,
		resolver:   resolver,
		assembler:  assembler,
		cache:      cache,
		transcoder: transcoder,
		streams:    streams,
	}
}

func (a *ApiManagerCtx) Mount(r *chi.Mux) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Post("/upload/chunk", a.uploadChunk)

			r.Route("/{fileId}", func(r chi.Router) {
				r.Get("/", a.getFile)
				r.Get("/download", a.download)
				r.Get("/thumbnail", a.thumbnail)
				r.Get("/sprite", a.sprite)
				r.Get("/sprite/meta", a.spriteMeta)
				r.Get("/waveform", a.waveform)
			})
		})

		r.Route("/stream/{fileId}", func(r chi.Router) {
			r.Get("/info", a.streamInfo)
			r.Post("/prepare", a.streamPrepare)
			r.Get("/master.m3u8", a.masterPlaylist)
			r.Get("/subtitles/{lang}", a.subtitle)
			r.Get("/{quality}/playlist.m3u8", a.mediaPlaylist)
			r.Get("/{quality}/{segment}", a.segment)
		})

		r.Route("/transcode/jobs/{jobId}", func(r chi.Router) {
			r.Get("/", a.jobStatus)
			r.Delete("/", a.jobCancel)
		})
	})
}
