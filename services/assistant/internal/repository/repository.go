package repository

import (
	"context"

	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// SnapshotRepository caches the last published snapshot of each session so a
// client can still read its view after the live session is gone.
type SnapshotRepository interface {
	// Get returns the cached snapshot for a session, or a NotFound error.
	Get(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Save stores snap under its session id, replacing any older version.
	Save(ctx context.Context, snap domain.Snapshot) error

	// Delete removes a session's snapshot.
	Delete(ctx context.Context, sessionID string) error
}
