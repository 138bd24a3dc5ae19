// Package storage provides composable storage interfaces for Chronicler.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The analysis engine only
// depends on these interfaces; SQLite and Postgres backends implement them.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/chronicler/pkg/types"
)

// EntityStore provides read and write access to campaign entities.
// The analysis engine uses only the read side; writes exist for the
// application layer and the CLI.
type EntityStore interface {
	// GetAll retrieves a snapshot of every entity in the campaign.
	GetAll(ctx context.Context) ([]types.Entity, error)

	// GetByID retrieves an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetByID(ctx context.Context, id string) (*types.Entity, error)

	// GetByIDs retrieves multiple entities by ID. Missing IDs are skipped,
	// not errored, so the result may be shorter than the input.
	GetByIDs(ctx context.Context, ids []string) ([]types.Entity, error)

	// GetEntitiesLinkingTo returns entities that have an outgoing link whose
	// target is the given entity ID.
	GetEntitiesLinkingTo(ctx context.Context, id string) ([]types.Entity, error)

	// Store creates or updates an entity (upsert semantics).
	Store(ctx context.Context, entity *types.Entity) error

	// Delete removes an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	Delete(ctx context.Context, id string) error

	// Count returns the total number of entities.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// SuggestionStore persists analysis suggestions and their review lifecycle.
type SuggestionStore interface {
	// BulkAdd inserts a batch of stamped suggestions in one write.
	// This is the only write the orchestrator performs per analysis run.
	BulkAdd(ctx context.Context, suggestions []types.Suggestion) error

	// GetAll retrieves every stored suggestion.
	GetAll(ctx context.Context) ([]types.Suggestion, error)

	// GetByID retrieves a suggestion by ID.
	// Returns ErrNotFound if the suggestion doesn't exist.
	GetByID(ctx context.Context, id string) (*types.Suggestion, error)

	// UpdateStatus moves a suggestion through its review lifecycle
	// (pending -> accepted / dismissed / expired).
	// Returns ErrNotFound if the suggestion doesn't exist.
	UpdateStatus(ctx context.Context, id string, status types.SuggestionStatus) error

	// MarkExpired transitions pending suggestions whose expiry has passed to
	// the expired status. Returns the number of suggestions transitioned.
	MarkExpired(ctx context.Context, now time.Time) (int, error)

	// ClearAll removes every stored suggestion.
	ClearAll(ctx context.Context) error

	// GetStats returns aggregate counts used for scheduling decisions and
	// the review UI.
	GetStats(ctx context.Context) (*SuggestionStats, error)

	// Close releases any resources held by the store.
	Close() error
}

// RunMarkerStore records the entity count observed at the last completed
// analysis run. ShouldRunAnalysis compares against it to detect material
// campaign growth. Implementations may be backed by the suggestion store's
// database.
type RunMarkerStore interface {
	// SetLastRun records the time and entity count of a completed run.
	SetLastRun(ctx context.Context, at time.Time, entityCount int) error

	// GetLastRun returns the last recorded run marker.
	// Returns ErrNotFound when no run has been recorded.
	GetLastRun(ctx context.Context) (*RunMarker, error)
}
