package storage

import (
	"errors"
	"time"

	"github.com/scrypster/chronicler/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// SuggestionStats holds aggregate suggestion counts.
type SuggestionStats struct {
	// Total is the number of stored suggestions across all statuses.
	Total int

	// ByStatus counts suggestions per lifecycle status.
	ByStatus map[types.SuggestionStatus]int

	// ByType counts suggestions per analyzer type.
	ByType map[types.SuggestionType]int

	// ExpiredCount is the number of suggestions past their expiry,
	// regardless of whether MarkExpired has transitioned them yet.
	ExpiredCount int
}

// RunMarker records when the last analysis run completed and how many
// entities existed at that point.
type RunMarker struct {
	// RanAt is when the run's suggestions were persisted.
	RanAt time.Time

	// EntityCount is the campaign size observed by that run.
	EntityCount int
}
