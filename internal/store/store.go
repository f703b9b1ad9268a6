package store

import (
	"context"
	"errors"

	"matrixhub/internal/models"
)

// ErrNoImage is returned by LoadImage when no image has been uploaded yet.
var ErrNoImage = errors.New("no image stored")

// Store persists the shared state document and the display image blob.
//
// LoadState never fails hard: on any read or decode error the
// implementation logs the fault and returns the last known (or default)
// document, so a storage outage degrades to in-memory-only operation.
type Store interface {
	LoadState(ctx context.Context) models.StateDocument
	SaveState(ctx context.Context, doc models.StateDocument) error

	// SaveImage stores the PNG blob and bumps the revision counter
	// atomically, returning the new revision.
	SaveImage(ctx context.Context, png []byte) (int64, error)
	LoadImage(ctx context.Context) ([]byte, int64, error)
}

// Normalize clamps brightness into [0,100] and wraps rotation into
// [0,360). Every implementation applies it before writing so the
// persisted copy is always canonical.
func Normalize(doc models.StateDocument) models.StateDocument {
	if doc.Brightness < 0 {
		doc.Brightness = 0
	}
	if doc.Brightness > 100 {
		doc.Brightness = 100
	}
	doc.Rotation = ((doc.Rotation % 360) + 360) % 360
	if doc.Mode < 0 {
		doc.Mode = 0
	}
	return doc
}
