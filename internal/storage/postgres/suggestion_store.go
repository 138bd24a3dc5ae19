package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/chronicler/internal/storage"
	"github.com/scrypster/chronicler/pkg/types"
)

// SuggestionStore implements storage.SuggestionStore and storage.RunMarkerStore
// using PostgreSQL.
type SuggestionStore struct {
	db *DB
}

// NewSuggestionStore creates a suggestion store over an open database.
func NewSuggestionStore(db *DB) *SuggestionStore {
	return &SuggestionStore{db: db}
}

const suggestionColumns = `id, type, title, description, relevance_score, affected_ids, suggested_action, status, created_at, expires_at`

// BulkAdd inserts a batch of stamped suggestions in a single transaction.
func (s *SuggestionStore) BulkAdd(ctx context.Context, suggestions []types.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO suggestions (`+suggestionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range suggestions {
		sg := &suggestions[i]
		if sg.ID == "" {
			return fmt.Errorf("%w: suggestion ID is required", storage.ErrInvalidInput)
		}
		if len(sg.AffectedEntityIDs) == 0 {
			return fmt.Errorf("%w: suggestion must affect at least one entity", storage.ErrInvalidInput)
		}

		affectedJSON, err := json.Marshal(sg.AffectedEntityIDs)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal affected IDs: %w", err)
		}

		var actionJSON []byte
		if sg.SuggestedAction != nil {
			actionJSON, err = json.Marshal(sg.SuggestedAction)
			if err != nil {
				return fmt.Errorf("postgres: failed to marshal suggested action: %w", err)
			}
		}

		status := sg.Status
		if status == "" {
			status = types.StatusPending
		}

		if _, err := stmt.ExecContext(ctx,
			sg.ID, string(sg.Type), sg.Title, sg.Description, sg.RelevanceScore,
			affectedJSON, actionJSON, string(status), sg.CreatedAt, sg.ExpiresAt,
		); err != nil {
			return fmt.Errorf("postgres: failed to insert suggestion %s: %w", sg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit suggestions: %w", err)
	}
	return nil
}

// GetByID retrieves a suggestion by ID.
func (s *SuggestionStore) GetByID(ctx context.Context, id string) (*types.Suggestion, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`, id)

	suggestion, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get suggestion: %w", err)
	}
	return suggestion, nil
}

// GetAll retrieves every stored suggestion, newest first.
func (s *SuggestionStore) GetAll(ctx context.Context) ([]types.Suggestion, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []types.Suggestion
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, *suggestion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate suggestions: %w", err)
	}
	return suggestions, nil
}

// UpdateStatus moves a suggestion through its review lifecycle.
func (s *SuggestionStore) UpdateStatus(ctx context.Context, id string, status types.SuggestionStatus) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	result, err := s.db.db.ExecContext(ctx,
		`UPDATE suggestions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update suggestion status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkExpired transitions pending suggestions past their expiry to expired.
func (s *SuggestionStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.db.ExecContext(ctx, `
		UPDATE suggestions SET status = $1
		WHERE status = $2 AND expires_at < $3
	`, string(types.StatusExpired), string(types.StatusPending), now)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to mark expired suggestions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to check expiry result: %w", err)
	}
	return int(affected), nil
}

// ClearAll removes every stored suggestion.
func (s *SuggestionStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM suggestions`); err != nil {
		return fmt.Errorf("postgres: failed to clear suggestions: %w", err)
	}
	return nil
}

// GetStats returns aggregate suggestion counts.
func (s *SuggestionStore) GetStats(ctx context.Context) (*storage.SuggestionStats, error) {
	stats := &storage.SuggestionStats{
		ByStatus: make(map[types.SuggestionStatus]int),
		ByType:   make(map[types.SuggestionType]int),
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT status, type, COUNT(*) FROM suggestions GROUP BY status, type`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query suggestion stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status types.SuggestionStatus
			sType  types.SuggestionType
			count  int
		)
		if err := rows.Scan(&status, &sType, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan stats row: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[sType] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate stats: %w", err)
	}

	err = s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suggestions WHERE expires_at < $1`, time.Now()).
		Scan(&stats.ExpiredCount)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count expired suggestions: %w", err)
	}

	return stats, nil
}

// SetLastRun records the time and entity count of a completed analysis run.
func (s *SuggestionStore) SetLastRun(ctx context.Context, at time.Time, entityCount int) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, ran_at, entity_count)
		VALUES (1, $1, $2)
		ON CONFLICT(id) DO UPDATE SET
			ran_at = EXCLUDED.ran_at,
			entity_count = EXCLUDED.entity_count
	`, at, entityCount)
	if err != nil {
		return fmt.Errorf("postgres: failed to record analysis run: %w", err)
	}
	return nil
}

// GetLastRun returns the last recorded run marker.
func (s *SuggestionStore) GetLastRun(ctx context.Context) (*storage.RunMarker, error) {
	var marker storage.RunMarker
	err := s.db.db.QueryRowContext(ctx,
		`SELECT ran_at, entity_count FROM analysis_runs WHERE id = 1`).
		Scan(&marker.RanAt, &marker.EntityCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get last run: %w", err)
	}
	return &marker, nil
}

// Close is a no-op; the shared DB owns the connection pool.
func (s *SuggestionStore) Close() error {
	return nil
}

func scanSuggestion(row scanner) (*types.Suggestion, error) {
	var (
		suggestion    types.Suggestion
		sType, status string
		affectedJSON  string
		actionJSON    sql.NullString
	)

	err := row.Scan(
		&suggestion.ID, &sType, &suggestion.Title, &suggestion.Description,
		&suggestion.RelevanceScore, &affectedJSON, &actionJSON, &status,
		&suggestion.CreatedAt, &suggestion.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	suggestion.Type = types.SuggestionType(sType)
	suggestion.Status = types.SuggestionStatus(status)

	if err := json.Unmarshal([]byte(affectedJSON), &suggestion.AffectedEntityIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal affected IDs: %w", err)
	}
	if actionJSON.Valid && actionJSON.String != "" {
		suggestion.SuggestedAction = &types.SuggestedAction{}
		if err := json.Unmarshal([]byte(actionJSON.String), suggestion.SuggestedAction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggested action: %w", err)
		}
	}

	return &suggestion, nil
}
