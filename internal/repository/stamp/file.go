package stamp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/opus-provision/internal/config"
)

// Repository defines persistence operations for the stamp.
type Repository interface {
	Load(ctx context.Context) (*Stamp, error)
	Save(ctx context.Context, stamp *Stamp) error
}

// FileRepository persists the stamp to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the stamp file.
	path string
	// mu protects concurrent access to the stamp file.
	mu sync.Mutex
}

// ErrNotFound is returned when the stamp file does not exist yet.
var ErrNotFound = errors.New("stamp not found")

// NewFileRepository creates a repository that reads/writes Filename inside outDir.
func NewFileRepository(outDir string) *FileRepository {
	return &FileRepository{
		path: filepath.Join(filepath.Clean(outDir), Filename),
	}
}

// Path returns the stamp file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the stamp from disk.
func (r *FileRepository) Load(_ context.Context) (*Stamp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read stamp file: %w", err)
	}

	var s Stamp
	if err = yaml.Unmarshal(contents, &s); err != nil {
		return nil, fmt.Errorf("decode stamp file: %w", err)
	}

	return &s, nil
}

// Save writes the stamp to disk. A stale stamp is removed before writing, so
// an interrupted save leaves no stamp rather than an outdated one.
func (r *FileRepository) Save(_ context.Context, s *Stamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stamp: %w", err)
	}

	if err = os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stamp file: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write stamp file: %w", err)
	}

	return nil
}

// Remove deletes the stamp. A missing stamp is not an error.
func (r *FileRepository) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stamp file: %w", err)
	}

	return nil
}
