package scratch

import (
	"fmt"
	"sync"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// MemoryProvider keeps payloads in memory. MaxBytes bounds the bytes held at
// once by a single space; zero means unbounded.
type MemoryProvider struct {
	MaxBytes int64
}

func NewMemoryProvider(maxBytes int64) *MemoryProvider {
	return &MemoryProvider{MaxBytes: maxBytes}
}

func (p *MemoryProvider) NewSpace(string) (Space, error) {
	return &memorySpace{max: p.MaxBytes}, nil
}

type memorySpace struct {
	max int64

	mu     sync.Mutex
	used   int64
	live   int
	closed bool
}

func (s *memorySpace) Store(key string, data []byte) (models.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSpaceClosed
	}
	size := int64(len(data))
	if s.max > 0 && s.used+size > s.max {
		return nil, fmt.Errorf("%w: storing %s needs %d bytes, %d of %d in use", ErrSpaceExhausted, key, size, s.used, s.max)
	}
	s.used += size
	s.live++
	return &memoryPayload{space: s, data: data, size: size}, nil
}

func (s *memorySpace) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *memorySpace) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySpace) release(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used -= size
	s.live--
}

type memoryPayload struct {
	space *memorySpace
	size  int64

	mu   sync.Mutex
	data []byte
}

func (p *memoryPayload) Bytes() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil, ErrReleased
	}
	return p.data, nil
}

func (p *memoryPayload) Size() int64 { return p.size }

func (p *memoryPayload) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil
	}
	p.data = nil
	p.space.release(p.size)
	return nil
}
