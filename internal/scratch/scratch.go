// Package scratch provides page-scoped transient storage for raster payloads.
// A Space is opened per document; every payload stored in it is released by
// the unit that consumed it, and Close reclaims whatever is left.
package scratch

import (
	"errors"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

var (
	ErrSpaceClosed    = errors.New("scratch space is closed")
	ErrSpaceExhausted = errors.New("scratch space exhausted")
	ErrReleased       = errors.New("payload already released")
)

// Provider opens a Space for one document.
type Provider interface {
	NewSpace(documentID string) (Space, error)
}

// Space holds the raster payloads of one document while it is processed.
// Store may be called concurrently.
type Space interface {
	Store(key string, data []byte) (models.Payload, error)
	// Live returns the number of stored payloads not yet released.
	Live() int
	Close() error
}
