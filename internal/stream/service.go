package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mediavault/internal/database/models"
	"mediavault/internal/files"
	"mediavault/internal/hls"
	"mediavault/internal/media"
	"mediavault/internal/queue"
)

var (
	// ErrNotTransmuxable is returned when a transmux is requested for a
	// source whose video codec requires re-encoding.
	ErrNotTransmuxable = errors.New("source requires a full transcode")
	// ErrStreamNotReady is returned when no manifest exists yet.
	ErrStreamNotReady = errors.New("stream not ready")
	// ErrNotStreamable is returned when a source has no video stream to
	// build an adaptive stream from.
	ErrNotStreamable = errors.New("source has no video stream")
	// ErrInvalidName is returned for URL path components that are not
	// plain names.
	ErrInvalidName = errors.New("invalid path component")
)

// safeName accepts only plain path components, keeping URL-supplied file
// ids and qualities inside the HLS tree.
func safeName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && s == filepath.Base(s)
}

// Transmuxer is the cheap synchronous repackaging operation; satisfied by
// *media.Encoder.
type Transmuxer interface {
	TransmuxHLS(ctx context.Context, opts media.TransmuxOptions) error
}

// Info reports the readiness of a file's adaptive stream.
type Info struct {
	Available      bool                 `json:"available"`
	Qualities      []string             `json:"qualities"`
	IsTransmux     bool                 `json:"isTransmux"`
	NeedsTranscode bool                 `json:"needsTranscode"`
	TranscodeJob   *models.TranscodeJob `json:"transcodeJob,omitempty"`
}

// PrepareResult answers a client pre-warm request.
type PrepareResult struct {
	JobID           string `json:"jobId,omitempty"`
	Ready           bool   `json:"ready"`
	FirstSegmentURL string `json:"firstSegmentUrl,omitempty"`
}

// Config for the stream service.
type Config struct {
	// HLSDir is the root under which per-file stream trees live.
	HLSDir string
	// BasePath prefixes generated manifest/segment URLs, e.g. "/api/stream".
	BasePath string
}

// Service decides stream readiness per file: transmux inline when cheap,
// defer to the transcode queue otherwise, and serve manifests with auth
// tokens injected into every sub-resource reference.
type Service struct {
	logger     zerolog.Logger
	config     Config
	store      files.Store
	resolver   *files.Resolver
	prober     *media.Prober
	transmuxer Transmuxer
	transcoder queue.Transcoder

	// one transmux per file at a time within this process
	transmuxMu sync.Mutex
	transmuxes map[string]*sync.Mutex
}

func New(config Config, store files.Store, resolver *files.Resolver, prober *media.Prober, transmuxer Transmuxer, transcoder queue.Transcoder) *Service {
	return &Service{
		logger:     log.With().Str("module", "stream").Logger(),
		config:     config,
		store:      store,
		resolver:   resolver,
		prober:     prober,
		transmuxer: transmuxer,
		transcoder: transcoder,
		transmuxes: map[string]*sync.Mutex{},
	}
}

// streamDir is the deterministic root of one file's HLS tree.
func (s *Service) streamDir(fileID string) string {
	return filepath.Join(s.config.HLSDir, fileID)
}

func (s *Service) masterPath(fileID string) string {
	return filepath.Join(s.streamDir(fileID), hls.MasterName)
}

func (s *Service) manifestExists(fileID string) bool {
	_, err := os.Stat(s.masterPath(fileID))
	return err == nil
}

// GetStreamInfo reports availability from disk, or what work the source
// needs when no manifest exists yet.
func (s *Service) GetStreamInfo(ctx context.Context, fileID string) (*Info, error) {
	if !safeName(fileID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, fileID)
	}

	if s.manifestExists(fileID) {
		qualities, err := hls.DiscoverQualities(s.streamDir(fileID))
		if err != nil {
			return nil, err
		}

		isTransmux := len(qualities) == 1
		for _, q := range qualities {
			if q == "original" {
				isTransmux = true
			}
		}

		return &Info{
			Available:  true,
			Qualities:  qualities,
			IsTransmux: isTransmux,
		}, nil
	}

	file, err := s.store.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	sourcePath, err := s.resolver.Resolve(file.Path)
	if err != nil {
		return nil, err
	}

	report, err := s.prober.Probe(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	assessment := media.Assess(report)

	info := &Info{
		IsTransmux:     assessment.CanTransmux,
		NeedsTranscode: assessment.NeedsTranscode,
	}

	if job, err := s.transcoder.Active(ctx, fileID); err == nil && job != nil {
		info.TranscodeJob = job
	}

	return info, nil
}

// GenerateTransmux repackages the source into an HLS tree synchronously:
// video is stream-copied, audio re-encoded to AAC only when needed. A
// source whose video codec is not web-playable is rejected.
func (s *Service) GenerateTransmux(ctx context.Context, fileID string) error {
	if !safeName(fileID) {
		return fmt.Errorf("%w: %q", ErrInvalidName, fileID)
	}

	lock := s.transmuxLock(fileID)
	lock.Lock()
	defer lock.Unlock()

	if s.manifestExists(fileID) {
		return nil
	}

	file, err := s.store.Get(ctx, fileID)
	if err != nil {
		return err
	}

	sourcePath, err := s.resolver.Resolve(file.Path)
	if err != nil {
		return err
	}

	report, err := s.prober.Probe(ctx, sourcePath)
	if err != nil {
		return err
	}

	assessment := media.Assess(report)
	if assessment.VideoTranscode || report.VideoStream() == nil {
		return fmt.Errorf("%w: %s", ErrNotTransmuxable, assessment.Reason)
	}

	outputDir := filepath.Join(s.streamDir(fileID), "original")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	err = s.transmuxer.TransmuxHLS(ctx, media.TransmuxOptions{
		InputPath:      sourcePath,
		OutputDir:      outputDir,
		PlaylistName:   hls.MediaPlaylistName,
		SegmentSeconds: 6,
		TranscodeAudio: assessment.AudioTranscode,
	})
	if err != nil {
		return fmt.Errorf("transmux failed: %w", err)
	}

	return hls.WriteMaster(s.streamDir(fileID))
}

func (s *Service) transmuxLock(fileID string) *sync.Mutex {
	s.transmuxMu.Lock()
	defer s.transmuxMu.Unlock()

	lock, ok := s.transmuxes[fileID]
	if !ok {
		lock = &sync.Mutex{}
		s.transmuxes[fileID] = lock
	}
	return lock
}

// Prepare pre-warms a stream for a client about to navigate to playback:
// already ready, transmuxed inline, or queued for transcode with a job id
// to poll.
func (s *Service) Prepare(ctx context.Context, fileID string) (*PrepareResult, error) {
	if !safeName(fileID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, fileID)
	}

	if s.manifestExists(fileID) {
		return s.readyResult(fileID)
	}

	file, err := s.store.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	sourcePath, err := s.resolver.Resolve(file.Path)
	if err != nil {
		return nil, err
	}

	report, err := s.prober.Probe(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	if report.VideoStream() == nil {
		return nil, ErrNotStreamable
	}

	assessment := media.Assess(report)
	if !assessment.VideoTranscode {
		if err := s.GenerateTransmux(ctx, fileID); err != nil {
			return nil, err
		}
		return s.readyResult(fileID)
	}

	job, err := s.transcoder.Enqueue(ctx, fileID)
	if err != nil {
		return nil, err
	}

	return &PrepareResult{JobID: job.ID, Ready: false}, nil
}

// readyResult builds the first segment URL of the lowest-bandwidth quality
// so the client can pre-fetch before navigation.
func (s *Service) readyResult(fileID string) (*PrepareResult, error) {
	qualities, err := hls.DiscoverQualities(s.streamDir(fileID))
	if err != nil || len(qualities) == 0 {
		return nil, ErrStreamNotReady
	}

	quality := qualities[0]
	for _, q := range qualities[1:] {
		if hls.LookupQuality(q).Bandwidth < hls.LookupQuality(quality).Bandwidth {
			quality = q
		}
	}

	result := &PrepareResult{Ready: true}
	if segment, err := s.firstSegment(fileID, quality); err == nil {
		result.FirstSegmentURL = path.Join(s.config.BasePath, fileID, quality, segment)
	}

	return result, nil
}

// firstSegment scans a quality playlist for its first segment line.
func (s *Service) firstSegment(fileID, quality string) (string, error) {
	playlist, err := os.Open(filepath.Join(s.streamDir(fileID), quality, hls.MediaPlaylistName))
	if err != nil {
		return "", err
	}
	defer playlist.Close()

	scanner := bufio.NewScanner(playlist)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}

	return "", fmt.Errorf("no segments in %s/%s", fileID, quality)
}

// MasterPlaylist builds the served master manifest from the discovered
// quality list, appending the caller's token to every variant reference.
func (s *Service) MasterPlaylist(fileID string, token string) (string, error) {
	if !safeName(fileID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, fileID)
	}
	if !s.manifestExists(fileID) {
		return "", ErrStreamNotReady
	}

	qualities, err := hls.DiscoverQualities(s.streamDir(fileID))
	if err != nil {
		return "", err
	}

	return hls.BuildMaster(qualities, token), nil
}

// MediaPlaylist rewrites a quality playlist so segment lines point at the
// fully-qualified segment endpoint with the token appended.
func (s *Service) MediaPlaylist(fileID string, quality string, token string) (string, error) {
	if !safeName(fileID) || !safeName(quality) {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidName, fileID, quality)
	}

	data, err := os.ReadFile(filepath.Join(s.streamDir(fileID), quality, hls.MediaPlaylistName))
	if err != nil {
		return "", ErrStreamNotReady
	}

	base := path.Join(s.config.BasePath, fileID, quality)
	return hls.RewriteMediaPlaylist(string(data), base, token), nil
}

// SegmentPath resolves a segment request to its on-disk path, rejecting
// names that try to leave the quality directory.
func (s *Service) SegmentPath(fileID string, quality string, segment string) (string, error) {
	if !safeName(segment) || !strings.HasSuffix(segment, ".ts") {
		return "", fmt.Errorf("%w: segment %q", ErrInvalidName, segment)
	}
	if !safeName(quality) {
		return "", fmt.Errorf("%w: quality %q", ErrInvalidName, quality)
	}
	if !safeName(fileID) {
		return "", fmt.Errorf("%w: file id %q", ErrInvalidName, fileID)
	}

	segmentPath := filepath.Join(s.streamDir(fileID), quality, segment)
	if _, err := os.Stat(segmentPath); err != nil {
		return "", ErrStreamNotReady
	}

	return segmentPath, nil
}
