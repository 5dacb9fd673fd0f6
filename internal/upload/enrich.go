package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mediavault/internal/assets"
	"mediavault/internal/database/models"
	"mediavault/internal/files"
	"mediavault/internal/media"
)

// subtitle codecs that can be converted to WebVTT
var textSubtitleCodecs = map[string]bool{
	"subrip":   true,
	"ass":      true,
	"ssa":      true,
	"webvtt":   true,
	"mov_text": true,
}

// MediaEnricher extracts type-specific metadata after assembly: dimensions
// for images, tags and duration for audio, probe + track/subtitle
// extraction + thumbnail pre-warm for video. All of it is best-effort.
type MediaEnricher struct {
	logger   zerolog.Logger
	store    files.Store
	resolver *files.Resolver
	prober   *media.Prober
	encoder  *media.Encoder
	cache    *assets.Cache
}

func NewMediaEnricher(store files.Store, resolver *files.Resolver, prober *media.Prober, encoder *media.Encoder, cache *assets.Cache) *MediaEnricher {
	return &MediaEnricher{
		logger:   log.With().Str("module", "upload").Str("submodule", "enricher").Logger(),
		store:    store,
		resolver: resolver,
		prober:   prober,
		encoder:  encoder,
		cache:    cache,
	}
}

func (e *MediaEnricher) Enrich(ctx context.Context, file *models.File) error {
	sourcePath, err := e.resolver.Resolve(file.Path)
	if err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(file.MimeType, "image/"):
		return e.enrichImage(ctx, file, sourcePath)
	case strings.HasPrefix(file.MimeType, "audio/"):
		return e.enrichAudio(ctx, file, sourcePath)
	case strings.HasPrefix(file.MimeType, "video/"):
		return e.enrichVideo(ctx, file, sourcePath)
	}

	return nil
}

func (e *MediaEnricher) setMetadata(ctx context.Context, file *models.File, meta media.Metadata) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return e.store.SetMetadata(ctx, file.ID, blob)
}

func (e *MediaEnricher) enrichImage(ctx context.Context, file *models.File, sourcePath string) error {
	report, err := e.prober.Probe(ctx, sourcePath)
	if err != nil {
		return err
	}

	meta := media.Metadata{}
	if video := report.VideoStream(); video != nil {
		meta.Width = video.Width
		meta.Height = video.Height
	}

	return e.setMetadata(ctx, file, meta)
}

func (e *MediaEnricher) enrichAudio(ctx context.Context, file *models.File, sourcePath string) error {
	report, err := e.prober.Probe(ctx, sourcePath)
	if err != nil {
		return err
	}

	return e.setMetadata(ctx, file, e.prober.Metadata(report))
}

func (e *MediaEnricher) enrichVideo(ctx context.Context, file *models.File, sourcePath string) error {
	report, err := e.prober.Probe(ctx, sourcePath)
	if err != nil {
		return err
	}

	if err := e.setMetadata(ctx, file, e.prober.Metadata(report)); err != nil {
		return err
	}

	tracks := e.collectTracks(file.ID, report)
	subtitles := e.extractSubtitles(ctx, file.ID, sourcePath, report)

	if err := e.store.ReplaceTracks(ctx, file.ID, tracks, subtitles); err != nil {
		return err
	}

	// pre-warm the default thumbnail so the browser grid is instant
	if _, err := e.cache.Thumbnail(ctx, assets.ThumbnailRequest{
		FileID:     file.ID,
		SourcePath: sourcePath,
		Size:       assets.SizeMedium,
		IsVideo:    true,
		Duration:   report.Duration(),
	}); err != nil {
		e.logger.Warn().Err(err).Str("file", file.ID).Msg("thumbnail pre-warm failed")
	}

	return nil
}

func (e *MediaEnricher) collectTracks(fileID string, report *media.Report) []models.VideoTrack {
	var tracks []models.VideoTrack
	for _, stream := range report.Streams {
		if stream.CodecType != "video" && stream.CodecType != "audio" {
			continue
		}
		tracks = append(tracks, models.VideoTrack{
			FileID:    fileID,
			TrackType: stream.CodecType,
			Codec:     stream.CodecName,
			Language:  stream.Tags.Language,
			Index:     stream.Index,
			Title:     stream.Tags.Title,
		})
	}
	return tracks
}

// extractSubtitles converts every text subtitle stream to WebVTT under the
// per-file subtitle directory. Streams that fail to convert are skipped.
func (e *MediaEnricher) extractSubtitles(ctx context.Context, fileID string, sourcePath string, report *media.Report) []models.Subtitle {
	var subtitles []models.Subtitle

	for i, stream := range report.SubtitleStreams() {
		if !textSubtitleCodecs[stream.CodecName] {
			continue
		}

		language := stream.Tags.Language
		if language == "" {
			language = fmt.Sprintf("und%d", i)
		}

		relPath := path.Join("subtitles", fileID, language+".vtt")
		outPath, err := e.resolver.Resolve(relPath)
		if err != nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			continue
		}

		if err := e.encoder.ExtractSubtitle(ctx, sourcePath, stream.Index, outPath); err != nil {
			e.logger.Warn().Err(err).Str("file", fileID).Str("language", language).Msg("subtitle extraction failed")
			continue
		}

		subtitles = append(subtitles, models.Subtitle{
			FileID:   fileID,
			Language: language,
			Path:     relPath,
			Format:   "vtt",
			Title:    stream.Tags.Title,
		})
	}

	return subtitles
}
