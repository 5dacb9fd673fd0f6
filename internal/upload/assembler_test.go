package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediavault/internal/database/models"
	"mediavault/internal/files"
)

type memStore struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func newMemStore() *memStore {
	return &memStore{files: map[string]*models.File{}}
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
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, file := range s.files {
		if file.FolderID == folderID && file.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Create(ctx context.Context, file *models.File) error {
	exists, _ := s.Exists(ctx, file.FolderID, file.Name)
	if exists {
		return files.ErrConflict
	}
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

type countingEnricher struct {
	calls int
	err   error
}

func (e *countingEnricher) Enrich(ctx context.Context, file *models.File) error {
	e.calls++
	return e.err
}

func newTestAssembler(t *testing.T) (*Assembler, *memStore, *countingEnricher, string) {
	t.Helper()
	root := t.TempDir()
	store := newMemStore()
	enricher := &countingEnricher{}
	assembler := NewAssembler(store, files.NewResolver(root), enricher, filepath.Join(root, "uploads"))
	return assembler, store, enricher, root
}

func sendChunk(t *testing.T, a *Assembler, uploadID string, index, total int, data []byte) *models.File {
	t.Helper()
	file, err := a.WriteChunk(context.Background(), ChunkRequest{
		UploadID:    uploadID,
		Index:       index,
		TotalChunks: total,
		FileName:    "report.bin",
		FolderID:    "folder-1",
		Data:        bytes.NewReader(data),
	})
	require.NoError(t, err)
	return file
}

func TestChunkOrderIndependence(t *testing.T) {
	chunks := [][]byte{
		bytes.Repeat([]byte{'a'}, 1000),
		bytes.Repeat([]byte{'b'}, 1000),
		bytes.Repeat([]byte{'c'}, 500),
	}
	want := bytes.Join(chunks, nil)
	wantSum := sha256.Sum256(want)

	assemble := func(t *testing.T, order []int) *models.File {
		assembler, _, _, root := newTestAssembler(t)

		var file *models.File
		for _, index := range order {
			file = sendChunk(t, assembler, "up-1", index, 3, chunks[index])
		}
		require.NotNil(t, file, "final chunk must complete the upload")

		data, err := os.ReadFile(filepath.Join(root, file.Path))
		require.NoError(t, err)
		assert.Equal(t, want, data)
		return file
	}

	inOrder := assemble(t, []int{0, 1, 2})
	outOfOrder := assemble(t, []int{2, 0, 1})

	assert.Equal(t, inOrder.Checksum, outOfOrder.Checksum)
	assert.Equal(t, hex.EncodeToString(wantSum[:]), inOrder.Checksum)
	assert.Equal(t, int64(2500), inOrder.SizeBytes)
}

func TestIncompleteUploadReportsAccepted(t *testing.T) {
	assembler, _, enricher, root := newTestAssembler(t)

	file := sendChunk(t, assembler, "up-1", 0, 3, []byte("first"))
	assert.Nil(t, file)
	assert.Equal(t, 0, enricher.calls)

	// chunk directory holds the partial upload
	entries, err := os.ReadDir(filepath.Join(root, "uploads", "up-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestChunkDirRemovedAfterAssembly(t *testing.T) {
	assembler, _, enricher, root := newTestAssembler(t)

	sendChunk(t, assembler, "up-1", 0, 2, []byte("aa"))
	file := sendChunk(t, assembler, "up-1", 1, 2, []byte("bb"))
	require.NotNil(t, file)

	_, err := os.Stat(filepath.Join(root, "uploads", "up-1"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, enricher.calls)
}

func TestInvalidChunkIndex(t *testing.T) {
	assembler, _, _, _ := newTestAssembler(t)

	cases := []struct{ index, total int }{
		{-1, 3},
		{3, 3},
		{7, 3},
		{0, 0},
	}
	for _, c := range cases {
		_, err := assembler.WriteChunk(context.Background(), ChunkRequest{
			UploadID:    "up-1",
			Index:       c.index,
			TotalChunks: c.total,
			FileName:    "x.bin",
			Data:        bytes.NewReader([]byte("x")),
		})
		assert.True(t, errors.Is(err, ErrInvalidChunk), "index=%d total=%d", c.index, c.total)
	}
}

func TestDuplicateTargetConflicts(t *testing.T) {
	assembler, store, _, _ := newTestAssembler(t)

	require.NoError(t, store.Create(context.Background(), &models.File{
		ID:       "existing",
		FolderID: "folder-1",
		Name:     "report.bin",
		Path:     "media/existing/report.bin",
	}))

	_, err := assembler.WriteChunk(context.Background(), ChunkRequest{
		UploadID:    "up-1",
		Index:       0,
		TotalChunks: 1,
		FileName:    "report.bin",
		FolderID:    "folder-1",
		Data:        bytes.NewReader([]byte("x")),
	})
	assert.True(t, errors.Is(err, files.ErrConflict))
}

func TestEnrichmentFailureKeepsFile(t *testing.T) {
	assembler, store, enricher, _ := newTestAssembler(t)
	enricher.err = errors.New("unsupported codec")

	file := sendChunk(t, assembler, "up-1", 0, 1, []byte("payload"))
	require.NotNil(t, file)

	stored, err := store.Get(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.bin", stored.Name)
}
