package stream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediavault/internal/database/models"
	"mediavault/internal/files"
	"mediavault/internal/hls"
	"mediavault/internal/media"
)

//
// fakes
//

type memStore struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func (s *memStore) Get(ctx context.Context, id string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return nil, files.ErrNotFound
	}
	return file, nil
}

func (s *memStore) Exists(ctx context.Context, folderID, name string) (bool, error) {
	return false, nil
}

func (s *memStore) Create(ctx context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.ID] = file
	return nil
}

func (s *memStore) SetMetadata(ctx context.Context, id string, metadata []byte) error { return nil }

func (s *memStore) ReplaceTracks(ctx context.Context, fileID string, tracks []models.VideoTrack, subtitles []models.Subtitle) error {
	return nil
}

func (s *memStore) Subtitle(ctx context.Context, fileID string, language string) (*models.Subtitle, error) {
	return nil, files.ErrNotFound
}

// probeRunner returns canned ffprobe JSON.
type probeRunner struct {
	output string
}

func (r *probeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return []byte(r.output), nil
}

type fakeTransmuxer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTransmuxer) TransmuxHLS(ctx context.Context, opts media.TransmuxOptions) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	playlist := "#EXTM3U\n#EXTINF:6.000,\nsegment-00000.ts\n#EXT-X-ENDLIST\n"
	return os.WriteFile(filepath.Join(opts.OutputDir, opts.PlaylistName), []byte(playlist), 0644)
}

type fakeTranscoder struct {
	mu       sync.Mutex
	enqueued []string
	active   *models.TranscodeJob
}

func (f *fakeTranscoder) Enqueue(ctx context.Context, fileID string) (*models.TranscodeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, fileID)
	return &models.TranscodeJob{ID: "job-" + fileID, FileID: fileID, Status: models.JobStatusPending}, nil
}

func (f *fakeTranscoder) Job(ctx context.Context, id string) (*models.TranscodeJob, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTranscoder) Active(ctx context.Context, fileID string) (*models.TranscodeJob, error) {
	return f.active, nil
}

func (f *fakeTranscoder) Cancel(ctx context.Context, id string) error { return nil }

const h264Probe = `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":1280,"height":720},{"index":1,"codec_type":"audio","codec_name":"aac","channels":2}],"format":{"duration":"60.0"}}`

const hevcProbe = `{"streams":[{"index":0,"codec_type":"video","codec_name":"hevc","width":3840,"height":2160},{"index":1,"codec_type":"audio","codec_name":"flac","channels":2}],"format":{"duration":"60.0"}}`

const audioOnlyProbe = `{"streams":[{"index":0,"codec_type":"audio","codec_name":"mp3","channels":2}],"format":{"duration":"180.0"}}`

type fixture struct {
	service    *Service
	store      *memStore
	transmuxer *fakeTransmuxer
	transcoder *fakeTranscoder
	root       string
}

func newFixture(t *testing.T, probeJSON string) *fixture {
	t.Helper()

	root := t.TempDir()
	store := &memStore{files: map[string]*models.File{}}
	transmuxer := &fakeTransmuxer{}
	transcoder := &fakeTranscoder{}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "media"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "media", "movie.mkv"), []byte("x"), 0644))
	require.NoError(t, store.Create(context.Background(), &models.File{
		ID:   "f1",
		Name: "movie.mkv",
		Path: "media/movie.mkv",
	}))

	service := New(
		Config{HLSDir: filepath.Join(root, "hls"), BasePath: "/api/stream"},
		store,
		files.NewResolver(root),
		media.NewProber("ffprobe", &probeRunner{output: probeJSON}),
		transmuxer,
		transcoder,
	)

	return &fixture{service: service, store: store, transmuxer: transmuxer, transcoder: transcoder, root: root}
}

func seedStreamTree(t *testing.T, root string, fileID string, qualities ...string) {
	t.Helper()
	dir := filepath.Join(root, "hls", fileID)
	for _, quality := range qualities {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, quality), 0755))
		playlist := "#EXTM3U\n#EXTINF:6.000,\nsegment-00000.ts\n#EXT-X-ENDLIST\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, quality, hls.MediaPlaylistName), []byte(playlist), 0644))
	}
	require.NoError(t, hls.WriteMaster(dir))
}

//
// tests
//

func TestGetStreamInfo(t *testing.T) {
	t.Run("available from disk", func(t *testing.T) {
		f := newFixture(t, h264Probe)
		seedStreamTree(t, f.root, "f1", "original")

		info, err := f.service.GetStreamInfo(context.Background(), "f1")
		require.NoError(t, err)

		assert.True(t, info.Available)
		assert.Equal(t, []string{"original"}, info.Qualities)
		assert.True(t, info.IsTransmux)
	})

	t.Run("transmuxable source", func(t *testing.T) {
		f := newFixture(t, h264Probe)

		info, err := f.service.GetStreamInfo(context.Background(), "f1")
		require.NoError(t, err)

		assert.False(t, info.Available)
		assert.True(t, info.IsTransmux)
		assert.False(t, info.NeedsTranscode)
	})

	t.Run("transcode needed with active job", func(t *testing.T) {
		f := newFixture(t, hevcProbe)
		f.transcoder.active = &models.TranscodeJob{ID: "job-1", FileID: "f1", Status: models.JobStatusProcessing}

		info, err := f.service.GetStreamInfo(context.Background(), "f1")
		require.NoError(t, err)

		assert.True(t, info.NeedsTranscode)
		require.NotNil(t, info.TranscodeJob)
		assert.Equal(t, "job-1", info.TranscodeJob.ID)
	})

	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t, h264Probe)

		_, err := f.service.GetStreamInfo(context.Background(), "ghost")
		assert.True(t, errors.Is(err, files.ErrNotFound))
	})
}

func TestGenerateTransmux(t *testing.T) {
	t.Run("writes tree and master", func(t *testing.T) {
		f := newFixture(t, h264Probe)

		require.NoError(t, f.service.GenerateTransmux(context.Background(), "f1"))

		assert.FileExists(t, filepath.Join(f.root, "hls", "f1", hls.MasterName))
		assert.FileExists(t, filepath.Join(f.root, "hls", "f1", "original", hls.MediaPlaylistName))
		assert.Equal(t, 1, f.transmuxer.calls)
	})

	t.Run("idempotent once manifest exists", func(t *testing.T) {
		f := newFixture(t, h264Probe)

		require.NoError(t, f.service.GenerateTransmux(context.Background(), "f1"))
		require.NoError(t, f.service.GenerateTransmux(context.Background(), "f1"))

		assert.Equal(t, 1, f.transmuxer.calls)
	})

	t.Run("rejects non-playable video", func(t *testing.T) {
		f := newFixture(t, hevcProbe)

		err := f.service.GenerateTransmux(context.Background(), "f1")
		assert.True(t, errors.Is(err, ErrNotTransmuxable))
	})
}

func TestPrepare(t *testing.T) {
	t.Run("ready tree returns first segment url", func(t *testing.T) {
		f := newFixture(t, h264Probe)
		seedStreamTree(t, f.root, "f1", "480p", "720p")

		result, err := f.service.Prepare(context.Background(), "f1")
		require.NoError(t, err)

		assert.True(t, result.Ready)
		assert.Equal(t, "/api/stream/f1/480p/segment-00000.ts", result.FirstSegmentURL)
	})

	t.Run("transmux eligible runs inline", func(t *testing.T) {
		f := newFixture(t, h264Probe)

		result, err := f.service.Prepare(context.Background(), "f1")
		require.NoError(t, err)

		assert.True(t, result.Ready)
		assert.Equal(t, 1, f.transmuxer.calls)
		assert.Empty(t, f.transcoder.enqueued)
	})

	t.Run("transcode path enqueues job", func(t *testing.T) {
		f := newFixture(t, hevcProbe)

		result, err := f.service.Prepare(context.Background(), "f1")
		require.NoError(t, err)

		assert.False(t, result.Ready)
		assert.Equal(t, "job-f1", result.JobID)
		assert.Equal(t, []string{"f1"}, f.transcoder.enqueued)
		assert.Equal(t, 0, f.transmuxer.calls)
	})

	t.Run("audio-only source is rejected, nothing enqueued", func(t *testing.T) {
		f := newFixture(t, audioOnlyProbe)

		_, err := f.service.Prepare(context.Background(), "f1")
		assert.True(t, errors.Is(err, ErrNotStreamable))
		assert.Empty(t, f.transcoder.enqueued)
		assert.Equal(t, 0, f.transmuxer.calls)
	})
}

func TestManifestServing(t *testing.T) {
	t.Run("master carries token on every variant", func(t *testing.T) {
		f := newFixture(t, h264Probe)
		seedStreamTree(t, f.root, "f1", "480p", "720p")

		master, err := f.service.MasterPlaylist("f1", "tok123")
		require.NoError(t, err)

		assert.Contains(t, master, "480p/playlist.m3u8?token=tok123")
		assert.Contains(t, master, "720p/playlist.m3u8?token=tok123")
	})

	t.Run("media playlist rewrites segments to endpoint urls", func(t *testing.T) {
		f := newFixture(t, h264Probe)
		seedStreamTree(t, f.root, "f1", "720p")

		playlist, err := f.service.MediaPlaylist("f1", "720p", "tok123")
		require.NoError(t, err)

		assert.Contains(t, playlist, "/api/stream/f1/720p/segment-00000.ts?token=tok123")
	})

	t.Run("not ready without manifest", func(t *testing.T) {
		f := newFixture(t, h264Probe)

		_, err := f.service.MasterPlaylist("f1", "")
		assert.True(t, errors.Is(err, ErrStreamNotReady))
	})
}

func TestSegmentPath(t *testing.T) {
	f := newFixture(t, h264Probe)
	seedStreamTree(t, f.root, "f1", "720p")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "hls", "f1", "720p", "segment-00000.ts"), []byte("ts"), 0644))

	t.Run("existing segment resolves", func(t *testing.T) {
		path, err := f.service.SegmentPath("f1", "720p", "segment-00000.ts")
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("traversal is rejected", func(t *testing.T) {
		_, err := f.service.SegmentPath("f1", "720p", "../../../etc/passwd.ts")
		assert.Error(t, err)

		_, err = f.service.SegmentPath("f1", "..", "segment-00000.ts")
		assert.Error(t, err)
	})

	t.Run("missing segment", func(t *testing.T) {
		_, err := f.service.SegmentPath("f1", "720p", "segment-99999.ts")
		assert.True(t, errors.Is(err, ErrStreamNotReady))
	})
}

func TestFileIDStaysInsideHLSRoot(t *testing.T) {
	f := newFixture(t, h264Probe)
	seedStreamTree(t, f.root, "f1", "720p")

	// plant a sibling tree outside the HLS root shaped like a stream
	outside := filepath.Join(f.root, "private", "secret")
	require.NoError(t, os.MkdirAll(outside, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "dump.ts"), []byte("ts"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, hls.MediaPlaylistName), []byte("#EXTM3U\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "private", hls.MasterName), []byte("#EXTM3U\n"), 0644))

	t.Run("segment path", func(t *testing.T) {
		_, err := f.service.SegmentPath("../private", "secret", "dump.ts")
		assert.True(t, errors.Is(err, ErrInvalidName))
	})

	t.Run("media playlist", func(t *testing.T) {
		_, err := f.service.MediaPlaylist("../private", "secret", "tok")
		assert.True(t, errors.Is(err, ErrInvalidName))
	})

	t.Run("master playlist", func(t *testing.T) {
		_, err := f.service.MasterPlaylist("../private", "tok")
		assert.True(t, errors.Is(err, ErrInvalidName))
	})

	t.Run("stream info", func(t *testing.T) {
		_, err := f.service.GetStreamInfo(context.Background(), "../private")
		assert.True(t, errors.Is(err, ErrInvalidName))
	})

	t.Run("prepare", func(t *testing.T) {
		_, err := f.service.Prepare(context.Background(), "../private")
		assert.True(t, errors.Is(err, ErrInvalidName))
	})

	t.Run("dot-dot alone", func(t *testing.T) {
		_, err := f.service.SegmentPath("..", "720p", "segment-00000.ts")
		assert.True(t, errors.Is(err, ErrInvalidName))
	})
}
