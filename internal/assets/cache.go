package assets

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"mediavault/internal/media"
	"mediavault/internal/metrics"
)

// ThumbnailSize is one of the fixed thumbnail variants.
type ThumbnailSize string

const (
	SizeSmall  ThumbnailSize = "small"  // 256px
	SizeMedium ThumbnailSize = "medium" // 512px
	SizeLarge  ThumbnailSize = "large"  // 1024px
	SizeBlur   ThumbnailSize = "blur"   // 32px + box blur
)

var thumbnailPixels = map[ThumbnailSize]int{
	SizeSmall:  256,
	SizeMedium: 512,
	SizeLarge:  1024,
	SizeBlur:   32,
}

// ParseThumbnailSize validates a size query value, defaulting to medium.
func ParseThumbnailSize(raw string) (ThumbnailSize, error) {
	if raw == "" {
		return SizeMedium, nil
	}
	size := ThumbnailSize(raw)
	if _, ok := thumbnailPixels[size]; !ok {
		return "", fmt.Errorf("unknown thumbnail size %q", raw)
	}
	return size, nil
}

const (
	spriteColumns     = 10
	spriteRows        = 10
	spriteThumbWidth  = 160
	spriteThumbHeight = 90

	waveformSamples = 200

	minWaveformWidth  = 100
	maxWaveformWidth  = 2000
	minWaveformHeight = 50
	maxWaveformHeight = 500
)

// SpriteMeta is the sidecar timing metadata produced with every sprite.
type SpriteMeta struct {
	Columns     int     `json:"columns"`
	Rows        int     `json:"rows"`
	ThumbWidth  int     `json:"thumbWidth"`
	ThumbHeight int     `json:"thumbHeight"`
	Interval    float64 `json:"interval"`
	TotalFrames int     `json:"totalFrames"`
}

// Generator produces derived asset bytes from a source file. Satisfied by
// *media.Encoder; tests inject counters.
type Generator interface {
	ExtractFrame(ctx context.Context, inputPath string, atSeconds float64, outputPath string) error
	ResizeImage(ctx context.Context, inputPath string, outputPath string, opts media.ResizeOptions) error
	Sprite(ctx context.Context, inputPath string, outputPath string, opts media.SpriteOptions) error
	WaveformPCM(ctx context.Context, inputPath string) ([]byte, error)
	WaveformImage(ctx context.Context, inputPath string, outputPath string, width, height int) error
	ConvertAudio(ctx context.Context, inputPath string, outputPath string, codec string, bitrate string) error
}

// Config toggles optional asset kinds.
type Config struct {
	// AudioVariants enables FLAC to Opus conversion for streaming.
	AudioVariants bool
}

// Cache lazily generates derived assets keyed by deterministic on-disk
// paths. Existence of the output path is the only cache record; generation
// is idempotent so a rare duplicate race is tolerable. The audio variant is
// the exception: concurrent requests share one encode via singleflight.
type Cache struct {
	logger    zerolog.Logger
	storage   Storage
	generator Generator
	config    Config

	inflight singleflight.Group
}

func NewCache(storage Storage, generator Generator, config Config) *Cache {
	return &Cache{
		logger:    log.With().Str("module", "assets").Logger(),
		storage:   storage,
		generator: generator,
		config:    config,
	}
}

func derivedPath(fileID string, name string) string {
	return path.Join("derived", fileID, name)
}

// hit reports whether the asset already exists, counting cache telemetry.
func (c *Cache) hit(kind, relPath string) bool {
	if c.storage.Exists(relPath) {
		metrics.AssetCacheHits.WithLabelValues(kind).Inc()
		return true
	}
	metrics.AssetCacheMisses.WithLabelValues(kind).Inc()
	return false
}

//
// thumbnails
//

// ThumbnailRequest identifies one thumbnail variant of a source file.
type ThumbnailRequest struct {
	FileID     string
	SourcePath string // absolute path of the source file
	Size       ThumbnailSize
	IsVideo    bool
	Duration   float64 // required for video sources
}

// Thumbnail returns the absolute path of the requested variant, generating
// it on first access. Video sources are frame-extracted once and the frame
// is reused by every size.
func (c *Cache) Thumbnail(ctx context.Context, req ThumbnailRequest) (string, error) {
	pixels, ok := thumbnailPixels[req.Size]
	if !ok {
		return "", fmt.Errorf("unknown thumbnail size %q", req.Size)
	}

	relPath := derivedPath(req.FileID, fmt.Sprintf("thumb_%s.webp", req.Size))
	if c.hit("thumbnail", relPath) {
		return c.storage.Abs(relPath), nil
	}

	source := req.SourcePath
	if req.IsVideo {
		frame, err := c.videoFrame(ctx, req)
		if err != nil {
			return "", err
		}
		source = frame
	}

	if err := c.storage.EnsureParent(relPath); err != nil {
		return "", err
	}

	err := c.generator.ResizeImage(ctx, source, c.storage.Abs(relPath), media.ResizeOptions{
		Size: pixels,
		Blur: req.Size == SizeBlur,
	})
	if err != nil {
		return "", fmt.Errorf("thumbnail generation failed: %w", err)
	}

	return c.storage.Abs(relPath), nil
}

// videoFrame extracts the representative frame at min(duration*0.1,
// duration-1) seconds, cached alongside the thumbnails.
func (c *Cache) videoFrame(ctx context.Context, req ThumbnailRequest) (string, error) {
	relPath := derivedPath(req.FileID, "video_thumb.jpg")
	if c.hit("video_thumbnail", relPath) {
		return c.storage.Abs(relPath), nil
	}

	at := req.Duration * 0.1
	if at > req.Duration-1 {
		at = req.Duration - 1
	}
	if at < 0 {
		at = 0
	}

	if err := c.storage.EnsureParent(relPath); err != nil {
		return "", err
	}

	if err := c.generator.ExtractFrame(ctx, req.SourcePath, at, c.storage.Abs(relPath)); err != nil {
		return "", fmt.Errorf("frame extraction failed: %w", err)
	}

	return c.storage.Abs(relPath), nil
}

//
// scrub sprite
//

// Sprite returns the sprite sheet path and its timing metadata, generating
// both together on first access. When the image exists but the sidecar is
// unreadable the metadata is not trusted and both are regenerated.
func (c *Cache) Sprite(ctx context.Context, fileID string, sourcePath string, duration float64) (string, SpriteMeta, error) {
	imagePath := derivedPath(fileID, "sprite.jpg")
	metaPath := derivedPath(fileID, "sprite.json")

	if c.hit("sprite", imagePath) {
		data, err := c.storage.ReadFile(metaPath)
		if err == nil {
			var meta SpriteMeta
			if err := json.Unmarshal(data, &meta); err == nil {
				return c.storage.Abs(imagePath), meta, nil
			}
		}
		c.logger.Warn().Str("file", fileID).Msg("sprite metadata unreadable, regenerating")
	}

	if duration <= 0 {
		return "", SpriteMeta{}, errors.New("sprite requires a known duration")
	}

	totalFrames := spriteColumns * spriteRows
	meta := SpriteMeta{
		Columns:     spriteColumns,
		Rows:        spriteRows,
		ThumbWidth:  spriteThumbWidth,
		ThumbHeight: spriteThumbHeight,
		Interval:    duration / float64(totalFrames),
		TotalFrames: totalFrames,
	}

	if err := c.storage.EnsureParent(imagePath); err != nil {
		return "", SpriteMeta{}, err
	}

	err := c.generator.Sprite(ctx, sourcePath, c.storage.Abs(imagePath), media.SpriteOptions{
		Columns:     spriteColumns,
		Rows:        spriteRows,
		ThumbWidth:  spriteThumbWidth,
		ThumbHeight: spriteThumbHeight,
		Interval:    meta.Interval,
	})
	if err != nil {
		return "", SpriteMeta{}, fmt.Errorf("sprite generation failed: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return "", SpriteMeta{}, err
	}
	if err := c.storage.WriteFile(metaPath, data); err != nil {
		return "", SpriteMeta{}, err
	}

	return c.storage.Abs(imagePath), meta, nil
}

//
// waveform
//

// WaveformData returns the downsampled amplitude series for an audio file,
// generating and caching it on first access.
func (c *Cache) WaveformData(ctx context.Context, fileID string, sourcePath string) ([]float64, error) {
	relPath := derivedPath(fileID, "waveform.json")
	if c.hit("waveform_data", relPath) {
		data, err := c.storage.ReadFile(relPath)
		if err == nil {
			var samples []float64
			if err := json.Unmarshal(data, &samples); err == nil {
				return samples, nil
			}
		}
		// unreadable cache falls through to regeneration
	}

	pcm, err := c.generator.WaveformPCM(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("waveform extraction failed: %w", err)
	}

	samples := downsamplePCM(pcm, waveformSamples)

	data, err := json.Marshal(samples)
	if err != nil {
		return nil, err
	}
	if err := c.storage.WriteFile(relPath, data); err != nil {
		return nil, err
	}

	return samples, nil
}

// WaveformImage returns a rendered PNG waveform at the requested size,
// clamped to [100,2000]x[50,500].
func (c *Cache) WaveformImage(ctx context.Context, fileID string, sourcePath string, width, height int) (string, error) {
	width = clamp(width, minWaveformWidth, maxWaveformWidth)
	height = clamp(height, minWaveformHeight, maxWaveformHeight)

	relPath := derivedPath(fileID, fmt.Sprintf("waveform_%dx%d.png", width, height))
	if c.hit("waveform_image", relPath) {
		return c.storage.Abs(relPath), nil
	}

	if err := c.storage.EnsureParent(relPath); err != nil {
		return "", err
	}

	if err := c.generator.WaveformImage(ctx, sourcePath, c.storage.Abs(relPath), width, height); err != nil {
		return "", fmt.Errorf("waveform render failed: %w", err)
	}

	return c.storage.Abs(relPath), nil
}

// downsamplePCM converts little-endian signed 16-bit samples to absolute
// amplitudes block-averaged into the target bucket count, normalized to
// [0,1].
func downsamplePCM(pcm []byte, buckets int) []float64 {
	sampleCount := len(pcm) / 2
	if sampleCount == 0 || buckets <= 0 {
		return []float64{}
	}
	if buckets > sampleCount {
		buckets = sampleCount
	}

	out := make([]float64, buckets)
	blockSize := sampleCount / buckets

	for i := 0; i < buckets; i++ {
		var sum float64
		for j := 0; j < blockSize; j++ {
			idx := (i*blockSize + j) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			if sample < 0 {
				sum += float64(-int32(sample))
			} else {
				sum += float64(sample)
			}
		}
		out[i] = sum / float64(blockSize) / 32768.0
	}

	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

//
// audio variant
//

// AudioVariant converts a FLAC source to Opus for bandwidth reduction.
// Returns the variant path and true, or ("", false) when the feature is
// disabled, the codec does not match, or the encode fails (the caller then
// serves the original). Concurrent requests for the same file share one
// encode through the in-flight group; the entry is dropped once it settles.
func (c *Cache) AudioVariant(ctx context.Context, fileID string, sourcePath string, sourceCodec string) (string, bool) {
	if !c.config.AudioVariants || sourceCodec != "flac" {
		return "", false
	}

	relPath := derivedPath(fileID, "audio_opus.ogg")
	if c.hit("audio_variant", relPath) {
		return c.storage.Abs(relPath), true
	}

	result, err, _ := c.inflight.Do(fileID, func() (interface{}, error) {
		defer c.inflight.Forget(fileID)

		// a concurrent winner may have finished while we queued
		if c.storage.Exists(relPath) {
			return c.storage.Abs(relPath), nil
		}

		if err := c.storage.EnsureParent(relPath); err != nil {
			return nil, err
		}

		if err := c.generator.ConvertAudio(ctx, sourcePath, c.storage.Abs(relPath), "libopus", "128k"); err != nil {
			return nil, err
		}

		return c.storage.Abs(relPath), nil
	})

	if err != nil {
		c.logger.Warn().Err(err).Str("file", fileID).Msg("audio variant failed, serving original")
		return "", false
	}

	return result.(string), true
}
