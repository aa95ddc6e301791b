package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FSProvider stores payloads as files in a per-document temp directory.
type FSProvider struct {
	dir string
}

// NewFSProvider returns a provider rooted at dir; an empty dir uses os.TempDir.
func NewFSProvider(dir string) *FSProvider {
	return &FSProvider{dir: dir}
}

func (p *FSProvider) NewSpace(documentID string) (Space, error) {
	tempDir, err := os.MkdirTemp(p.dir, "ocrflow-"+sanitize(documentID)+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &fsSpace{dir: tempDir}, nil
}

type fsSpace struct {
	dir    string
	live   atomic.Int64
	closed atomic.Bool
}

func (s *fsSpace) Store(key string, data []byte) (models.Payload, error) {
	if s.closed.Load() {
		return nil, ErrSpaceClosed
	}
	path := filepath.Join(s.dir, sanitize(key)+".raster")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write payload %s: %w", key, err)
	}
	s.live.Add(1)
	return &filePayload{space: s, path: path, size: int64(len(data))}, nil
}

func (s *fsSpace) Live() int { return int(s.live.Load()) }

func (s *fsSpace) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove temp dir %s: %w", s.dir, err)
	}
	return nil
}

type filePayload struct {
	space *fsSpace
	path  string
	size  int64

	mu       sync.Mutex
	released bool
}

func (p *filePayload) Bytes() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, ErrReleased
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

func (p *filePayload) Size() int64 { return p.size }

func (p *filePayload) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.space.live.Add(-1)
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove payload %s: %w", p.path, err)
	}
	return nil
}

func sanitize(s string) string {
	s = unsafeKeyChars.ReplaceAllString(s, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}
