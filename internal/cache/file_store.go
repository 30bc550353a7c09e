package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Markers that identify a project root when walking up from the working
// directory. The container image keeps everything under /app.
var rootMarkers = []string{".git", "go.mod", "Dockerfile"}

// FileStore keeps position documents as JSON files under <root>/cache/.
// The root is resolved once at construction so the bot reads the same files
// no matter which directory it is launched from.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a file-backed store rooted at the project directory
func NewFileStore(logger zerolog.Logger) (*FileStore, error) {
	root, err := findProjectRoot()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}

	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "FileStore").Logger(),
	}, nil
}

// NewFileStoreAt creates a file-backed store using an explicit directory.
// Used by tests.
func NewFileStoreAt(dir string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "FileStore").Logger(),
	}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, fmt.Sprintf("positions_%s.json", name))
}

func (s *FileStore) Save(name string, data []byte) error {
	path := s.path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing cache file %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Cache saved")
	return nil
}

func (s *FileStore) Load(name string) ([]byte, error) {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading cache file %s: %w", path, err)
	}
	return data, nil
}

func (s *FileStore) Clear(name string) error {
	return s.Save(name, emptyDocument)
}

// findProjectRoot walks up from the working directory looking for a root
// marker, falling back to /app when the binary runs in a container without
// repository files.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("error resolving working directory: %w", err)
	}

	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if info, err := os.Stat("/app"); err == nil && info.IsDir() {
		return "/app", nil
	}

	// Last resort: the working directory itself.
	return os.Getwd()
}

var _ Store = (*FileStore)(nil)
