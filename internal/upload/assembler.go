package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mediavault/internal/database/models"
	"mediavault/internal/files"
)

// ErrInvalidChunk is returned for a chunk index outside [0, totalChunks).
var ErrInvalidChunk = errors.New("invalid chunk index")

// ChunkRequest is one chunk of a declared multi-chunk upload. Order of
// arrival is not guaranteed; Index is authoritative.
type ChunkRequest struct {
	UploadID    string
	Index       int
	TotalChunks int
	FileName    string
	FolderID    string
	MimeType    string
	Data        io.Reader
}

// Enricher attaches type-specific metadata to a freshly assembled file.
// Failures are logged by the assembler and never fail the upload.
type Enricher interface {
	Enrich(ctx context.Context, file *models.File) error
}

type Assembler struct {
	logger   zerolog.Logger
	store    files.Store
	resolver *files.Resolver
	enricher Enricher
	tmpDir   string // per-upload chunk directories live here
}

func NewAssembler(store files.Store, resolver *files.Resolver, enricher Enricher, tmpDir string) *Assembler {
	return &Assembler{
		logger:   log.With().Str("module", "upload").Logger(),
		store:    store,
		resolver: resolver,
		enricher: enricher,
		tmpDir:   tmpDir,
	}
}

// WriteChunk persists one chunk. It returns (nil, nil) while the upload is
// incomplete and the created file record once the final chunk arrives and
// assembly succeeds.
func (a *Assembler) WriteChunk(ctx context.Context, req ChunkRequest) (*models.File, error) {
	if req.TotalChunks < 1 || req.Index < 0 || req.Index >= req.TotalChunks {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidChunk, req.Index, req.TotalChunks)
	}

	// fail fast before consuming storage
	exists, err := a.store.Exists(ctx, req.FolderID, req.FileName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, files.ErrConflict
	}

	chunkDir := filepath.Join(a.tmpDir, req.UploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create chunk dir: %w", err)
	}

	// zero-padded names keep listing order equal to assembly order
	chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%06d", req.Index))
	if err := writeChunkFile(chunkPath, req.Data); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, err
	}
	if len(entries) < req.TotalChunks {
		return nil, nil // accepted, not yet complete
	}

	file, err := a.assemble(ctx, chunkDir, req)
	if err != nil {
		return nil, err
	}

	if a.enricher != nil {
		if err := a.enricher.Enrich(ctx, file); err != nil {
			// the file stays usable, just without rich metadata
			a.logger.Warn().Err(err).Str("file", file.ID).Msg("enrichment failed")
		}
	}

	return file, nil
}

func writeChunkFile(path string, data io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create chunk file: %w", err)
	}

	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		return fmt.Errorf("unable to write chunk: %w", err)
	}

	return out.Close()
}

// assemble concatenates all chunks in ascending index order into the final
// destination, computes the content hash, records the file and removes the
// chunk directory.
func (a *Assembler) assemble(ctx context.Context, chunkDir string, req ChunkRequest) (*models.File, error) {
	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	fileID := uuid.New().String()
	relPath := path.Join("media", fileID, req.FileName)

	destPath, err := a.resolver.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("unable to create destination dir: %w", err)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("unable to create destination: %w", err)
	}
	defer dest.Close()

	hash := sha256.New()
	out := io.MultiWriter(dest, hash)

	var size int64
	for _, name := range names {
		chunk, err := os.Open(filepath.Join(chunkDir, name))
		if err != nil {
			return nil, err
		}

		n, err := io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to append chunk %s: %w", name, err)
		}
		size += n
	}

	if err := dest.Close(); err != nil {
		return nil, err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		if detected, err := mimetype.DetectFile(destPath); err == nil {
			mimeType = detected.String()
		}
	}

	file := &models.File{
		ID:        fileID,
		FolderID:  req.FolderID,
		Name:      req.FileName,
		Path:      relPath,
		MimeType:  mimeType,
		SizeBytes: size,
		Checksum:  hex.EncodeToString(hash.Sum(nil)),
	}

	if err := a.store.Create(ctx, file); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(chunkDir); err != nil {
		a.logger.Warn().Err(err).Str("dir", chunkDir).Msg("unable to remove chunk dir")
	}

	a.logger.Info().
		Str("file", file.ID).
		Str("name", file.Name).
		Int64("size", size).
		Int("chunks", len(names)).
		Msg("upload assembled")

	return file, nil
}
