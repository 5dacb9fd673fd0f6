package assets

import (
	"os"
	"path/filepath"
)

// Storage is the minimal filesystem surface the cache needs. Path existence
// is the cache-hit record; swapping the backend must not touch generation
// logic.
type Storage interface {
	// Abs maps a storage-relative path to an absolute one generators can
	// write to directly.
	Abs(relPath string) string
	Exists(relPath string) bool
	ReadFile(relPath string) ([]byte, error)
	WriteFile(relPath string, data []byte) error
	EnsureParent(relPath string) error
}

type diskStorage struct {
	root string
}

// NewDiskStorage returns local-disk backed Storage rooted at dir.
func NewDiskStorage(root string) Storage {
	return &diskStorage{root: root}
}

func (s *diskStorage) Abs(relPath string) string {
	return filepath.Join(s.root, relPath)
}

func (s *diskStorage) Exists(relPath string) bool {
	_, err := os.Stat(s.Abs(relPath))
	return err == nil
}

func (s *diskStorage) ReadFile(relPath string) ([]byte, error) {
	return os.ReadFile(s.Abs(relPath))
}

func (s *diskStorage) WriteFile(relPath string, data []byte) error {
	if err := s.EnsureParent(relPath); err != nil {
		return err
	}
	return os.WriteFile(s.Abs(relPath), data, 0644)
}

func (s *diskStorage) EnsureParent(relPath string) error {
	return os.MkdirAll(filepath.Dir(s.Abs(relPath)), 0755)
}
