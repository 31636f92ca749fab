package keeper

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// File keeps the last gateway token in a small file so an interrupted visit can resume.
// A sidecar lock file serialises concurrent CLI processes.
type File struct {
	path string
	lock *flock.Flock
}

func NewFile(path string) *File {
	return &File{path: path, lock: flock.New(path + ".lock")}
}

// DefaultPath is the per-user location of the kept token.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(dir, "safelink", "token"), nil
}

func (f *File) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("ensure keeper dir: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock keeper: %w", err)
	}
	defer f.lock.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write keeper: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// Load returns "" when nothing has been kept yet.
func (f *File) Load() (string, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return "", fmt.Errorf("ensure keeper dir: %w", err)
	}
	if err := f.lock.RLock(); err != nil {
		return "", fmt.Errorf("lock keeper: %w", err)
	}
	defer f.lock.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read keeper: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Memory keeps the token for the lifetime of the process.
type Memory struct {
	mu    sync.Mutex
	token string
}

func (m *Memory) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}
