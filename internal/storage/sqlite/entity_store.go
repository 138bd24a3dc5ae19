// Package sqlite implements the Chronicler storage interfaces on SQLite
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/chronicler/internal/storage"
	"github.com/scrypster/chronicler/pkg/types"
)

// DB wraps a SQLite database shared by the entity and suggestion stores.
type DB struct {
	db *sql.DB
}

// Open opens a SQLite database, configures WAL mode, and creates the schema.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode allows concurrent readers to proceed
	// without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// EntityStore implements storage.EntityStore using SQLite.
type EntityStore struct {
	db *DB
}

// NewEntityStore creates an entity store over an open database.
func NewEntityStore(db *DB) *EntityStore {
	return &EntityStore{db: db}
}

const entityColumns = `id, type, name, description, summary, notes, tags, fields, links, metadata, created_at, updated_at`

// Store creates or updates an entity (upsert semantics).
func (s *EntityStore) Store(ctx context.Context, entity *types.Entity) error {
	if entity == nil {
		return storage.ErrInvalidInput
	}
	if entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if entity.Name == "" {
		return fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}

	tagsJSON, err := marshalOrNil(entity.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	fieldsJSON, err := marshalOrNil(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	linksJSON, err := marshalOrNil(entity.Links)
	if err != nil {
		return fmt.Errorf("failed to marshal links: %w", err)
	}
	metadataJSON, err := marshalOrNil(entity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO entities (` + entityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			description = excluded.description,
			summary = excluded.summary,
			notes = excluded.notes,
			tags = excluded.tags,
			fields = excluded.fields,
			links = excluded.links,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err = s.db.db.ExecContext(ctx, query,
		entity.ID, entity.Type, entity.Name, entity.Description, entity.Summary, entity.Notes,
		tagsJSON, fieldsJSON, linksJSON, metadataJSON,
		entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store entity: %w", err)
	}

	return nil
}

// GetByID retrieves an entity by ID.
func (s *EntityStore) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// GetAll retrieves a snapshot of every entity.
func (s *EntityStore) GetAll(ctx context.Context) ([]types.Entity, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// GetByIDs retrieves multiple entities by ID, skipping missing IDs.
func (s *EntityStore) GetByIDs(ctx context.Context, ids []string) ([]types.Entity, error) {
	entities := make([]types.Entity, 0, len(ids))
	for _, id := range ids {
		entity, err := s.GetByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entities = append(entities, *entity)
	}
	return entities, nil
}

// GetEntitiesLinkingTo returns entities with an outgoing link targeting id.
// Links live in a JSON column, so this filters in Go rather than in SQL;
// campaign sizes make a full scan acceptable.
func (s *EntityStore) GetEntitiesLinkingTo(ctx context.Context, id string) ([]types.Entity, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var linking []types.Entity
	for _, entity := range all {
		for _, link := range entity.Links {
			if link.TargetID == id {
				linking = append(linking, entity)
				break
			}
		}
	}
	return linking, nil
}

// Delete removes an entity by ID.
func (s *EntityStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	result, err := s.db.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count returns the total number of entities.
func (s *EntityStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

// Close is a no-op; the shared DB owns the connection.
func (s *EntityStore) Close() error {
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEntity.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*types.Entity, error) {
	var (
		entity                                     types.Entity
		tagsJSON, fieldsJSON, linksJSON, metaJSON  sql.NullString
	)

	err := row.Scan(
		&entity.ID, &entity.Type, &entity.Name, &entity.Description, &entity.Summary, &entity.Notes,
		&tagsJSON, &fieldsJSON, &linksJSON, &metaJSON,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalIfValid(tagsJSON, &entity.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := unmarshalIfValid(fieldsJSON, &entity.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	if err := unmarshalIfValid(linksJSON, &entity.Links); err != nil {
		return nil, fmt.Errorf("failed to unmarshal links: %w", err)
	}
	if err := unmarshalIfValid(metaJSON, &entity.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &entity, nil
}

func collectEntities(rows *sql.Rows) ([]types.Entity, error) {
	var entities []types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

// marshalOrNil marshals v to JSON, returning nil for nil/empty values so the
// column stores NULL instead of "null".
func marshalOrNil(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []types.Link:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func unmarshalIfValid(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}
