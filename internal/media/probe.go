package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrProbeFailed wraps a non-zero ffprobe exit; callers treating probing as
// best-effort enrichment should log it and carry on.
var ErrProbeFailed = errors.New("media probe failed")

// Stream is a single demuxed stream as reported by ffprobe.
type Stream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	RFrameRate string `json:"r_frame_rate,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Tags       struct {
		Language string `json:"language,omitempty"`
		Title    string `json:"title,omitempty"`
	} `json:"tags,omitempty"`
}

// Report is the parsed ffprobe output for one file.
type Report struct {
	Streams []Stream `json:"streams"`
	Format  struct {
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		BitRate    string            `json:"bit_rate"`
		Tags       map[string]string `json:"tags,omitempty"`
	} `json:"format"`
}

// VideoStream returns the first video stream, or nil.
func (r *Report) VideoStream() *Stream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// AudioStreams returns all audio streams in report order.
func (r *Report) AudioStreams() []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			out = append(out, s)
		}
	}
	return out
}

// SubtitleStreams returns all subtitle streams in report order.
func (r *Report) SubtitleStreams() []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if s.CodecType == "subtitle" {
			out = append(out, s)
		}
	}
	return out
}

// Duration returns the container duration in seconds, falling back to the
// first video stream when the format entry is missing.
func (r *Report) Duration() float64 {
	if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
		return d
	}
	if v := r.VideoStream(); v != nil {
		if d, err := strconv.ParseFloat(v.Duration, 64); err == nil {
			return d
		}
	}
	return 0
}

// AudioTrack describes one audio stream in the metadata blob.
type AudioTrack struct {
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Channels int    `json:"channels"`
}

// SubtitleInfo describes one subtitle stream in the metadata blob.
type SubtitleInfo struct {
	Language string `json:"language"`
	Format   string `json:"format"`
}

// Metadata is the opaque blob attached to a file record after probing.
type Metadata struct {
	Duration    float64        `json:"duration"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	VideoCodec  string         `json:"videoCodec"`
	Bitrate     int            `json:"bitrate"`
	FPS         float64        `json:"fps"`
	AudioTracks []AudioTrack   `json:"audioTracks,omitempty"`
	Subtitles   []SubtitleInfo `json:"subtitles,omitempty"`
}

type Prober struct {
	logger  zerolog.Logger
	runner  Runner
	ffprobe string
}

func NewProber(ffprobeBinary string, runner Runner) *Prober {
	return &Prober{
		logger:  log.With().Str("module", "media").Str("submodule", "prober").Logger(),
		runner:  runner,
		ffprobe: ffprobeBinary,
	}
}

// Probe inspects a media file and returns its parsed stream/format report.
func (p *Prober) Probe(ctx context.Context, inputPath string) (*Report, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	out, err := p.runner.Output(ctx, p.ffprobe, args...)
	if err != nil {
		p.logger.Warn().Err(err).Str("input", inputPath).Msg("ffprobe exited with an error")
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	report := &Report{}
	if err := json.Unmarshal(out, report); err != nil {
		return nil, fmt.Errorf("unable to parse ffprobe output: %w", err)
	}

	return report, nil
}

// Metadata reduces a report to the metadata blob: first video stream, all
// audio streams, all subtitle streams.
func (p *Prober) Metadata(report *Report) Metadata {
	meta := Metadata{
		Duration: report.Duration(),
	}

	if bitrate, err := strconv.Atoi(report.Format.BitRate); err == nil {
		meta.Bitrate = bitrate / 1000 // kbps
	}

	if video := report.VideoStream(); video != nil {
		meta.Width = video.Width
		meta.Height = video.Height
		meta.VideoCodec = video.CodecName
		meta.FPS = ParseFrameRate(video.RFrameRate)
	}

	for _, audio := range report.AudioStreams() {
		meta.AudioTracks = append(meta.AudioTracks, AudioTrack{
			Codec:    audio.CodecName,
			Language: audio.Tags.Language,
			Channels: audio.Channels,
		})
	}

	for _, sub := range report.SubtitleStreams() {
		meta.Subtitles = append(meta.Subtitles, SubtitleInfo{
			Language: sub.Tags.Language,
			Format:   sub.CodecName,
		})
	}

	return meta
}

// ParseFrameRate parses ffprobe's rational "num/den" frame rate form,
// returning 0 on malformed or zero-denominator input.
func ParseFrameRate(raw string) float64 {
	numStr, denStr, ok := strings.Cut(raw, "/")
	if !ok {
		return 0
	}

	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0
	}

	den, err := strconv.ParseFloat(denStr, 64)
	if err != nil || den == 0 {
		return 0
	}

	return num / den
}
