package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Encoder is the single adapter around the external ffmpeg binary. All
// argument assembly and output scraping lives here so the rest of the
// system only sees typed operations and progress events.
type Encoder struct {
	logger zerolog.Logger
	ffmpeg string
}

func NewEncoder(ffmpegBinary string) *Encoder {
	return &Encoder{
		logger: log.With().Str("module", "media").Str("submodule", "encoder").Logger(),
		ffmpeg: ffmpegBinary,
	}
}

// run executes ffmpeg synchronously, returning stdout and wrapping stderr
// into the error on non-zero exit.
func (e *Encoder) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.ffmpeg, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug().Strs("args", args).Msg("running encoder")

	if err := cmd.Run(); err != nil {
		return nil, &ExitError{Tool: e.ffmpeg, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}

// ExtractFrame grabs a single frame at the given offset into outputPath.
func (e *Encoder) ExtractFrame(ctx context.Context, inputPath string, atSeconds float64, outputPath string) error {
	_, err := e.run(ctx,
		"-y",
		"-ss", fmt.Sprintf("%.2f", atSeconds),
		"-i", inputPath,
		"-vframes", "1",
		"-q:v", "2",
		outputPath,
	)
	return err
}

// ResizeOptions control the thumbnail resize pipeline.
type ResizeOptions struct {
	Size    int  // bounding box edge in pixels
	Blur    bool // apply a box blur after scaling
	Quality int  // webp quality, 0 means default
}

// ResizeImage scales an image to fit the bounding box, optionally blurring,
// and writes a webp at fixed quality.
func (e *Encoder) ResizeImage(ctx context.Context, inputPath string, outputPath string, opts ResizeOptions) error {
	quality := opts.Quality
	if quality == 0 {
		quality = 80
	}

	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", opts.Size, opts.Size)
	if opts.Blur {
		filter += ",boxblur=2:1"
	}

	_, err := e.run(ctx,
		"-y",
		"-i", inputPath,
		"-vf", filter,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(quality),
		outputPath,
	)
	return err
}

// SpriteOptions describe a scrub sprite grid.
type SpriteOptions struct {
	Columns     int
	Rows        int
	ThumbWidth  int
	ThumbHeight int
	Interval    float64 // seconds between sampled frames
}

// Sprite tiles evenly time-spaced frames into one sheet image.
func (e *Encoder) Sprite(ctx context.Context, inputPath string, outputPath string, opts SpriteOptions) error {
	filter := fmt.Sprintf("fps=1/%.3f,scale=%d:%d,tile=%dx%d",
		opts.Interval, opts.ThumbWidth, opts.ThumbHeight, opts.Columns, opts.Rows)

	_, err := e.run(ctx,
		"-y",
		"-i", inputPath,
		"-vf", filter,
		"-frames:v", "1",
		outputPath,
	)
	return err
}

// WaveformPCM decodes the audio to mono 8kHz signed 16-bit samples and
// returns the raw byte stream.
func (e *Encoder) WaveformPCM(ctx context.Context, inputPath string) ([]byte, error) {
	return e.run(ctx,
		"-i", inputPath,
		"-ac", "1",
		"-ar", "8000",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	)
}

// WaveformImage renders a PNG waveform of the given dimensions.
func (e *Encoder) WaveformImage(ctx context.Context, inputPath string, outputPath string, width, height int) error {
	_, err := e.run(ctx,
		"-y",
		"-i", inputPath,
		"-filter_complex", fmt.Sprintf("showwavespic=s=%dx%d:colors=white", width, height),
		"-frames:v", "1",
		outputPath,
	)
	return err
}

// ConvertAudio re-encodes an audio file with the given codec and bitrate.
func (e *Encoder) ConvertAudio(ctx context.Context, inputPath string, outputPath string, codec string, bitrate string) error {
	_, err := e.run(ctx,
		"-y",
		"-i", inputPath,
		"-vn",
		"-c:a", codec,
		"-b:a", bitrate,
		outputPath,
	)
	return err
}

// ExtractSubtitle converts one subtitle stream to WebVTT.
func (e *Encoder) ExtractSubtitle(ctx context.Context, inputPath string, streamIndex int, outputPath string) error {
	_, err := e.run(ctx,
		"-y",
		"-i", inputPath,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "webvtt",
		outputPath,
	)
	return err
}

// TransmuxOptions control the cheap repackaging path.
type TransmuxOptions struct {
	InputPath      string
	OutputDir      string
	PlaylistName   string
	SegmentSeconds int
	TranscodeAudio bool // re-encode audio to AAC, video is always copied
}

// TransmuxHLS repackages a file into an HLS tree with stream copy for video
// and AAC re-encode for audio only when needed. Synchronous.
func (e *Encoder) TransmuxHLS(ctx context.Context, opts TransmuxOptions) error {
	if opts.SegmentSeconds == 0 {
		opts.SegmentSeconds = 6
	}

	audioCodec := "copy"
	if opts.TranscodeAudio {
		audioCodec = "aac"
	}

	args := []string{
		"-y",
		"-i", opts.InputPath,
		"-c:v", "copy",
		"-c:a", audioCodec,
	}
	if opts.TranscodeAudio {
		args = append(args, "-b:a", "128k")
	}
	args = append(args,
		"-sn",
		"-f", "hls",
		"-hls_time", strconv.Itoa(opts.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", opts.OutputDir+"/segment-%05d.ts",
		opts.OutputDir+"/"+opts.PlaylistName,
	)

	_, err := e.run(ctx, args...)
	return err
}

// EncodeOptions control a full HLS transcode.
type EncodeOptions struct {
	InputPath      string
	OutputDir      string
	PlaylistName   string
	Height         int    // target resolution, scaled on the shorter edge
	VideoBitrate   string // e.g. "2500k"
	AudioBitrate   string // e.g. "128k"
	SegmentSeconds int
}

// EncodeProgress is one progress event emitted while an encode runs.
type EncodeProgress struct {
	Percent float64
}

// EncodeSession is a running ffmpeg encode. Progress events arrive on the
// progress channel until the process exits; Wait returns the final error.
type EncodeSession struct {
	progress chan EncodeProgress

	cmd    *exec.Cmd
	stderr *lockedBuffer
	done   chan struct{}
	err    error
}

// Progress returns the stream of progress estimates.
func (s *EncodeSession) Progress() <-chan EncodeProgress {
	return s.progress
}

// Wait blocks until the encode finishes and returns its terminal error,
// with captured stderr attached on non-zero exit.
func (s *EncodeSession) Wait() error {
	<-s.done
	return s.err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// EncodeHLS starts a full re-encode into a single-quality HLS tree and
// streams progress estimates parsed from the encoder's output: total
// duration is discovered from stderr "Duration:" timestamps, the running
// position from "out_time_us=" lines on stdout.
func (e *Encoder) EncodeHLS(ctx context.Context, opts EncodeOptions) (*EncodeSession, error) {
	if opts.SegmentSeconds == 0 {
		opts.SegmentSeconds = 6
	}

	args := []string{
		"-y",
		"-i", opts.InputPath,
		"-vf", fmt.Sprintf("scale=-2:%d", opts.Height),
		"-c:v", "libx264",
		"-preset", "faster",
		"-profile:v", "high",
		"-b:v", opts.VideoBitrate,
		"-c:a", "aac",
		"-b:a", opts.AudioBitrate,
		"-sn",
		"-f", "hls",
		"-hls_time", strconv.Itoa(opts.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", opts.OutputDir + "/segment-%05d.ts",
		"-progress", "pipe:1",
		opts.OutputDir + "/" + opts.PlaylistName,
	}

	cmd := exec.CommandContext(ctx, e.ffmpeg, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	progress := make(chan EncodeProgress, 1)
	session := &EncodeSession{
		progress: progress,
		cmd:      cmd,
		stderr:   &lockedBuffer{},
		done:     make(chan struct{}),
	}

	var durationUs int64
	var durationMu sync.RWMutex

	wg := sync.WaitGroup{}
	wg.Add(2)

	// stderr carries diagnostics and the input duration
	go func() {
		defer wg.Done()

		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			session.stderr.append(line)

			if d, ok := parseDurationLine(line); ok {
				durationMu.Lock()
				durationUs = d
				durationMu.Unlock()
			}
		}
	}()

	// stdout carries -progress key=value pairs
	go func() {
		defer wg.Done()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			outTimeUs, ok := parseOutTimeLine(scanner.Text())
			if !ok {
				continue
			}

			durationMu.RLock()
			total := durationUs
			durationMu.RUnlock()

			if total <= 0 {
				continue
			}

			percent := float64(outTimeUs) / float64(total) * 100
			if percent > 100 {
				percent = 100
			}

			// drop events the consumer has not picked up yet
			select {
			case progress <- EncodeProgress{Percent: percent}:
			default:
			}
		}
	}()

	go func() {
		// the scanners must drain both pipes before Wait closes them,
		// or trailing stderr lines are lost from the error text
		wg.Wait()
		err := cmd.Wait()

		if err != nil {
			session.err = &ExitError{Tool: e.ffmpeg, Stderr: session.stderr.String(), Err: err}
		}

		close(progress)
		close(session.done)
	}()

	return session, nil
}

// parseDurationLine extracts the input duration in microseconds from an
// ffmpeg stderr line of the form "  Duration: 00:01:30.05, start: ...".
func parseDurationLine(line string) (int64, bool) {
	idx := strings.Index(line, "Duration:")
	if idx == -1 {
		return 0, false
	}

	rest := strings.TrimSpace(line[idx+len("Duration:"):])
	if idx := strings.IndexByte(rest, ','); idx != -1 {
		rest = rest[:idx]
	}

	seconds, ok := parseTimestamp(rest)
	if !ok {
		return 0, false
	}

	return int64(seconds * 1e6), true
}

// parseTimestamp parses "HH:MM:SS.ss" into seconds.
func parseTimestamp(raw string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return 0, false
	}

	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	return hours*3600 + minutes*60 + seconds, true
}

// parseOutTimeLine extracts the running position in microseconds from a
// "-progress" stdout line of the form "out_time_us=1234567".
func parseOutTimeLine(line string) (int64, bool) {
	value, ok := strings.CutPrefix(strings.TrimSpace(line), "out_time_us=")
	if !ok {
		return 0, false
	}

	outTime, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}

	return outTime, true
}
